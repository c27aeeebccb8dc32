package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"sibyl/internal/domain/models/chat"
	"sibyl/internal/service/chat/turn"
)

const (
	runCodeTimeout   = 30 * time.Second
	runCodeMaxOutput = 16 * 1024
)

// interpreters maps supported languages to their interpreter invocation.
// Source is passed on stdin via the script argument.
var interpreters = map[string][]string{
	"python": {"python3", "-c"},
	"bash":   {"bash", "-c"},
	"node":   {"node", "-e"},
}

// CodeRunner executes a snippet and reports its outcome.
type CodeRunner interface {
	Run(ctx context.Context, language, source string) (*ExecResult, error)
}

// ExecResult is the outcome of one code execution.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// SubprocessRunner runs snippets through local interpreters with a hard
// timeout. It assumes the server itself runs inside a sandboxed
// environment; it provides no isolation of its own.
type SubprocessRunner struct{}

func (SubprocessRunner) Run(ctx context.Context, language, source string) (*ExecResult, error) {
	argv, ok := interpreters[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	ctx, cancel := context.WithTimeout(ctx, runCodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], source)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("execution timed out after %s", runCodeTimeout)
	}

	result := &ExecResult{
		Stdout: truncate(stdout.String(), runCodeMaxOutput),
		Stderr: truncate(stderr.String(), runCodeMaxOutput),
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("run interpreter: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}

// RunCodeTool executes model-written code snippets. Output is not
// citeable; the model sees stdout, stderr, and the exit code.
type RunCodeTool struct {
	runner CodeRunner
	logger *slog.Logger
}

// NewRunCodeTool creates the code execution tool.
func NewRunCodeTool(runner CodeRunner, logger *slog.Logger) *RunCodeTool {
	return &RunCodeTool{runner: runner, logger: logger}
}

func (t *RunCodeTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "run_code",
		Description: "Execute a code snippet and return stdout, stderr, and the exit code.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Language of the snippet",
					"enum":        []any{"python", "bash", "node"},
				},
				"source": map[string]any{
					"type":        "string",
					"description": "The code to run",
				},
			},
			"required": []any{"language", "source"},
		},
	}
}

func (t *RunCodeTool) EmitStart(turnIndex int, tc *turn.Context) {
	t.logger.Debug("run_code starting", "turn_id", tc.TurnID, "turn_index", turnIndex)
}

func (t *RunCodeTool) Run(ctx context.Context, turnIndex int, tc *turn.Context, args map[string]any) (turn.ToolResponse, error) {
	language, _ := args["language"].(string)
	source, _ := args["source"].(string)
	if language == "" || source == "" {
		return turn.ToolResponse{}, fmt.Errorf("language and source are required")
	}

	result, err := t.runner.Run(ctx, language, source)
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("run code: %w", err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("encode result: %w", err)
	}
	return turn.ToolResponse{Text: string(payload), Artifact: result}, nil
}
