// Package openai adapts the go-openai streaming client to the chat
// provider contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
)

// Adapter streams chat completions from an OpenAI-compatible endpoint.
type Adapter struct {
	client *openai.Client
	logger *slog.Logger
}

// New creates an adapter for the given API key. baseURL overrides the
// endpoint for OpenAI-compatible servers; empty means api.openai.com.
func New(apiKey, baseURL string, logger *slog.Logger) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Adapter{client: openai.NewClientWithConfig(cfg), logger: logger}
}

// NewWithClient creates an adapter around an existing client.
func NewWithClient(client *openai.Client, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, logger: logger}
}

// NewImageClient creates a bare client for image generation requests.
func NewImageClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// StreamResponse implements the provider contract. The returned channel
// closes when the generation ends; a provider failure surfaces as a final
// event with Err set.
func (a *Adapter) StreamResponse(ctx context.Context, req *chatsvc.GenerateRequest) (<-chan chatsvc.StreamEvent, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}

	ch := make(chan chatsvc.StreamEvent)
	go a.pump(ctx, stream, ch)
	return ch, nil
}

func (a *Adapter) buildRequest(req *chatsvc.GenerateRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      convertMessages(req.Messages),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		out.MaxCompletionTokens = req.MaxTokens
	}
	for _, def := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

func (a *Adapter) pump(ctx context.Context, stream *openai.ChatCompletionStream, ch chan<- chatsvc.StreamEvent) {
	defer close(ch)
	defer func() { _ = stream.Close() }()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			send(ctx, ch, chatsvc.StreamEvent{Err: err})
			return
		}

		// The usage-only chunk arrives with no choices.
		if len(resp.Choices) == 0 {
			if resp.Usage != nil {
				send(ctx, ch, chatsvc.StreamEvent{Usage: &chatsvc.Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
				}})
			}
			continue
		}

		choice := resp.Choices[0]
		delta := chatsvc.Delta{
			Reasoning: choice.Delta.ReasoningContent,
			Content:   choice.Delta.Content,
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			delta.ToolCalls = append(delta.ToolCalls, chatsvc.ToolCallDelta{
				Index:        idx,
				ID:           tc.ID,
				Name:         tc.Function.Name,
				ArgsFragment: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != "" {
			delta.FinishReason = string(choice.FinishReason)
		}

		if !send(ctx, ch, chatsvc.StreamEvent{Delta: &delta}) {
			return
		}
	}
}

func send(ctx context.Context, ch chan<- chatsvc.StreamEvent, ev chatsvc.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func convertMessages(msgs []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch msg := m.(type) {
		case chat.SystemMessage:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case chat.UserMessage:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case chat.AssistantMessage:
			cm := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, cm)
		case chat.ToolOutputMessage:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.CallID,
				Content:    msg.Payload,
			})
		}
	}
	return out
}
