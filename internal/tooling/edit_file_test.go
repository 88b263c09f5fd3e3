package tooling

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, guard pathGuard, rel, content string) string {
	t.Helper()
	abs := filepath.Join(guard.Root(), rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return abs
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestEditFileReplacesUniqueMatch(t *testing.T) {
	guard := mustGuard(t)
	abs := writeTestFile(t, guard, "main.go", "foo baz")
	tool := NewEditFileTool(guard)

	result, err := tool.Call(context.Background(), map[string]any{
		"path": "main.go",
		"old":  "foo",
		"new":  "bar",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result == "" {
		t.Error("expected a non-empty result message")
	}
	if got := readTestFile(t, abs); got != "bar baz" {
		t.Errorf("file content = %q, want %q", got, "bar baz")
	}
}

func TestEditFileAmbiguousMatchLeavesFileUntouched(t *testing.T) {
	guard := mustGuard(t)
	const content = "foo baz foo"
	abs := writeTestFile(t, guard, "main.go", content)
	tool := NewEditFileTool(guard)

	_, err := tool.Call(context.Background(), map[string]any{
		"path": "main.go",
		"old":  "foo",
		"new":  "bar",
	})
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
	if got := readTestFile(t, abs); got != content {
		t.Errorf("file content changed on failed edit: %q", got)
	}
}

func TestEditFileMissingMatchLeavesFileUntouched(t *testing.T) {
	guard := mustGuard(t)
	const content = "foo baz"
	abs := writeTestFile(t, guard, "main.go", content)
	tool := NewEditFileTool(guard)

	_, err := tool.Call(context.Background(), map[string]any{
		"path": "main.go",
		"old":  "does-not-exist",
		"new":  "bar",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := readTestFile(t, abs); got != content {
		t.Errorf("file content changed on failed edit: %q", got)
	}
}

func TestEditFileRejectsDegenerateArgs(t *testing.T) {
	guard := mustGuard(t)
	writeTestFile(t, guard, "main.go", "foo")
	tool := NewEditFileTool(guard)

	if _, err := tool.Call(context.Background(), map[string]any{
		"path": "main.go",
		"old":  "",
		"new":  "bar",
	}); err == nil {
		t.Error("expected error for empty old string")
	}
	if _, err := tool.Call(context.Background(), map[string]any{
		"path": "main.go",
		"old":  "foo",
		"new":  "foo",
	}); err == nil {
		t.Error("expected error for old == new")
	}
}

func TestEditFileRejectsEscapingPath(t *testing.T) {
	guard := mustGuard(t)
	tool := NewEditFileTool(guard)

	_, err := tool.Call(context.Background(), map[string]any{
		"path": "../outside.go",
		"old":  "a",
		"new":  "b",
	})
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("expected ErrPathEscape, got %v", err)
	}
}

func TestEditFilePreservesPermissions(t *testing.T) {
	guard := mustGuard(t)
	abs := writeTestFile(t, guard, "run.sh", "#!/bin/sh\necho foo\n")
	if err := os.Chmod(abs, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	tool := NewEditFileTool(guard)

	if _, err := tool.Call(context.Background(), map[string]any{
		"path": "run.sh",
		"old":  "echo foo",
		"new":  "echo bar",
	}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o755 {
		t.Errorf("permissions = %o, want 755", perm)
	}
}
