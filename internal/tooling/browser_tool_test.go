package tooling

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBrowserToolUnavailableWhenCLIMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	tool := NewBrowserTool(0)

	_, err := tool.Call(context.Background(), map[string]any{
		"command": "open https://example.com",
	})
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("err = %v, want ErrToolUnavailable", err)
	}
	if !strings.Contains(err.Error(), "not installed") {
		t.Errorf("err = %v, want install hint", err)
	}
}

func TestBrowserToolRunsCLI(t *testing.T) {
	binDir := t.TempDir()
	script := filepath.Join(binDir, "agent_browser")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho \"ran: $@\"\n"), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	t.Setenv("PATH", binDir)
	tool := NewBrowserTool(0)

	out, err := tool.Call(context.Background(), map[string]any{
		"command": "open https://example.com",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(out, "ran: open https://example.com") {
		t.Errorf("output = %q", out)
	}
}

func TestBrowserToolRequiresCommand(t *testing.T) {
	tool := NewBrowserTool(0)
	if _, err := tool.Call(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing command")
	}
}
