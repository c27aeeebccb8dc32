package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"sibyl/internal/domain/models/chat"
	"sibyl/internal/service/chat/turn"
)

// ImageClient is the slice of the OpenAI client the image tool needs.
type ImageClient interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

// ImageArtifact is the rich record persisted for a generated image.
type ImageArtifact struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

// GenerateImageTool creates images from text prompts. Output is not
// citeable; the artifact carries the image URL for the client.
type GenerateImageTool struct {
	client ImageClient
	model  string
	logger *slog.Logger
}

// NewGenerateImageTool creates the image generation tool.
func NewGenerateImageTool(client ImageClient, model string, logger *slog.Logger) *GenerateImageTool {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &GenerateImageTool{client: client, model: model, logger: logger}
}

func (t *GenerateImageTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "generate_image",
		Description: "Generate an image from a text prompt.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "Description of the image to generate",
				},
				"size": map[string]any{
					"type":        "string",
					"description": "Image dimensions",
					"enum":        []any{"1024x1024", "1792x1024", "1024x1792"},
				},
			},
			"required": []any{"prompt"},
		},
	}
}

func (t *GenerateImageTool) EmitStart(turnIndex int, tc *turn.Context) {
	t.logger.Debug("generate_image starting", "turn_id", tc.TurnID, "turn_index", turnIndex)
}

func (t *GenerateImageTool) Run(ctx context.Context, turnIndex int, tc *turn.Context, args map[string]any) (turn.ToolResponse, error) {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return turn.ToolResponse{}, fmt.Errorf("prompt is required")
	}
	size, _ := args["size"].(string)
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}

	resp, err := t.client.CreateImage(ctx, openai.ImageRequest{
		Model:          t.model,
		Prompt:         prompt,
		Size:           size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return turn.ToolResponse{}, fmt.Errorf("generate image: empty response")
	}

	artifact := &ImageArtifact{
		URL:    resp.Data[0].URL,
		Prompt: prompt,
		Size:   size,
	}
	return turn.ToolResponse{
		Text:     fmt.Sprintf("Generated image available at %s", artifact.URL),
		Artifact: artifact,
	}, nil
}
