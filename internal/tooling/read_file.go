package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ReadFileTool returns file contents with line numbers, optionally paged.
type ReadFileTool struct {
	guard pathGuard
}

func (ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "read_file",
			Description: "Read a UTF-8 text file and return its contents with line numbers. The path must stay within the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to read, relative to the workspace root.",
					},
					"offset": map[string]any{
						"type":        "integer",
						"description": "Number of leading lines to skip (default 0).",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of lines to return (0 means all).",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

func (r ReadFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", errors.New("path is required")
	}
	abs, err := r.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}

	offset := intArg(args, "offset", 0)
	limit := intArg(args, "limit", 0)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	total := len(lines)
	if offset > 0 {
		if offset >= total {
			lines = nil
		} else {
			lines = lines[offset:]
		}
	}
	truncated := false
	if limit > 0 && len(lines) > limit {
		lines = lines[:limit]
		truncated = true
	}

	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%4d| %s\n", offset+i+1, line)
	}

	payload := map[string]any{
		"path":        r.guard.Rel(abs),
		"total_lines": total,
		"truncated":   truncated,
		"content":     b.String(),
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
