package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type mockRunner struct {
	result *ExecResult
	err    error
	gotLang   string
	gotSource string
}

func (m *mockRunner) Run(ctx context.Context, language, source string) (*ExecResult, error) {
	m.gotLang = language
	m.gotSource = source
	return m.result, m.err
}

func TestRunCodeReturnsExecResult(t *testing.T) {
	runner := &mockRunner{result: &ExecResult{Stdout: "42\n", ExitCode: 0}}
	tool := NewRunCodeTool(runner, testLogger())

	resp, err := tool.Run(context.Background(), 0, testTurnContext(), map[string]any{
		"language": "python",
		"source":   "print(6*7)",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.gotLang != "python" || runner.gotSource != "print(6*7)" {
		t.Errorf("runner called with %q %q", runner.gotLang, runner.gotSource)
	}

	var decoded ExecResult
	if err := json.Unmarshal([]byte(resp.Text), &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Stdout != "42\n" {
		t.Errorf("stdout: got %q", decoded.Stdout)
	}
	if resp.Artifact == nil {
		t.Error("expected exec result artifact")
	}
}

func TestRunCodeErrors(t *testing.T) {
	t.Run("missing fields", func(t *testing.T) {
		tool := NewRunCodeTool(&mockRunner{}, testLogger())
		if _, err := tool.Run(context.Background(), 0, testTurnContext(), map[string]any{"language": "python"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("runner failure propagates", func(t *testing.T) {
		boom := errors.New("timed out")
		tool := NewRunCodeTool(&mockRunner{err: boom}, testLogger())
		_, err := tool.Run(context.Background(), 0, testTurnContext(), map[string]any{
			"language": "bash",
			"source":   "sleep 999",
		})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want runner error", err)
		}
	})
}

func TestSubprocessRunnerRejectsUnknownLanguage(t *testing.T) {
	_, err := SubprocessRunner{}.Run(context.Background(), "cobol", "DISPLAY 'HI'")
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	got := truncate("0123456789abcdef", 8)
	if len(got) <= 8 {
		t.Errorf("expected truncation marker, got %q", got)
	}
	if got[:8] != "01234567" {
		t.Errorf("got %q", got)
	}
}
