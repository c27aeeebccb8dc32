package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadModelLimitsDefaults(t *testing.T) {
	limits, err := LoadModelLimits("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limits.CeilingFor("gpt-4o") != 128_000 {
		t.Errorf("gpt-4o: got %d", limits.CeilingFor("gpt-4o"))
	}
	if limits.CeilingFor("some-unknown-model") != limits.Default {
		t.Error("unknown model must fall back to default")
	}
}

func TestLoadModelLimitsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	content := "default: 8000\nceilings:\n  tiny-model: 4000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	limits, err := LoadModelLimits(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limits.CeilingFor("tiny-model") != 4000 {
		t.Errorf("tiny-model: got %d", limits.CeilingFor("tiny-model"))
	}
	if limits.CeilingFor("other") != 8000 {
		t.Errorf("default: got %d", limits.CeilingFor("other"))
	}
}

func TestLoadModelLimitsMissingFile(t *testing.T) {
	if _, err := LoadModelLimits("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
