package tooling

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// EditFileTool performs exact string replacements in files. The target
// string must occur exactly once; any failure leaves the file byte-for-byte
// unchanged, and the rewrite itself goes through a temp-file rename so
// partial content is never observable.
type EditFileTool struct {
	guard pathGuard
}

func NewEditFileTool(guard pathGuard) *EditFileTool {
	return &EditFileTool{guard: guard}
}

func (EditFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "edit_file",
			Description: "Perform exact string replacement in a file. The old string must match exactly (including whitespace and indentation) and must be unique in the file; include more surrounding context to disambiguate. Use read_file first to see the current content.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to edit, relative to the workspace root.",
					},
					"old": map[string]any{
						"type":        "string",
						"description": "The exact string to replace.",
					},
					"new": map[string]any{
						"type":        "string",
						"description": "The replacement string.",
					},
				},
				"required": []string{"path", "old", "new"},
			},
		},
	}
}

func (e *EditFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", errors.New("path is required")
	}
	oldString, ok := stringArg(args, "old")
	if !ok {
		return "", errors.New("old is required")
	}
	newString, ok := stringArg(args, "new")
	if !ok {
		return "", errors.New("new is required")
	}
	if oldString == "" {
		return "", errors.New("old must not be empty")
	}
	if oldString == newString {
		return "", errors.New("old and new must be different")
	}

	abs, err := e.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read file: %w", err)
	}

	text := string(content)
	switch count := strings.Count(text, oldString); {
	case count == 0:
		snippet := oldString
		const maxPreview = 80
		if len(snippet) > maxPreview {
			snippet = snippet[:maxPreview] + "..."
		}
		return "", fmt.Errorf("%w: old string not in file, double-check whitespace/indentation (looking for %q)", ErrNotFound, snippet)
	case count > 1:
		return "", fmt.Errorf("%w: old string appears %d times, provide a larger unique string", ErrAmbiguousMatch, count)
	}

	updated := strings.Replace(text, oldString, newString, 1)
	perm := os.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		perm = info.Mode().Perm()
	}
	if err := writeFileAtomic(abs, []byte(updated), perm); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Replaced 1 occurrence in %s", e.guard.Rel(abs)), nil
}
