package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// GlobTool finds files matching a glob pattern, newest modification first,
// so the model sees recently touched files before stale ones.
type GlobTool struct {
	guard pathGuard
}

type globEntry struct {
	path    string
	modTime time.Time
}

func NewGlobTool(guard pathGuard) *GlobTool {
	return &GlobTool{guard: guard}
}

func (GlobTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "glob_files",
			Description: "Find files under the workspace root whose name or root-relative path matches a glob pattern (e.g. '*.go', 'internal/*/config.yaml'). Results are sorted by modification time, newest first.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Glob pattern to match against file names or root-relative paths.",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Directory to search (default: workspace root).",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of files to return (default 100).",
					},
				},
				"required": []string{"pattern"},
			},
		},
	}
}

func (g *GlobTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	pattern, ok := stringArg(args, "pattern")
	if !ok || pattern == "" {
		return "", errors.New("pattern is required")
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return "", err
	}

	searchPath := ""
	if provided, ok := stringArg(args, "path"); ok {
		searchPath = provided
	}
	root, err := g.guard.Resolve(searchPath)
	if err != nil {
		return "", err
	}
	maxResults := intArg(args, "max_results", 100)
	if maxResults <= 0 {
		maxResults = 100
	}

	var entries []globEntry
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel := g.guard.Rel(path)
		baseOK, _ := filepath.Match(pattern, filepath.Base(path))
		relOK, _ := filepath.Match(pattern, rel)
		if !baseOK && !relOK {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, globEntry{path: rel, modTime: info.ModTime()})
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].modTime.After(entries[j].modTime)
	})
	truncated := false
	if len(entries) > maxResults {
		entries = entries[:maxResults]
		truncated = true
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, e.path)
	}
	payload := map[string]any{
		"pattern":   pattern,
		"count":     len(files),
		"files":     files,
		"truncated": truncated,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
