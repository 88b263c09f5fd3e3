package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListDirTool lists directory entries, optionally recursively.
type ListDirTool struct {
	guard pathGuard
}

func (ListDirTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "list_dir",
			Description: "List files within a directory, optionally recursively. All paths are constrained inside the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory path to list (default workspace root).",
					},
					"recursive": map[string]any{
						"type":        "boolean",
						"description": "Whether to walk subdirectories.",
					},
					"include_hidden": map[string]any{
						"type":        "boolean",
						"description": "Include entries whose names start with '.'.",
					},
					"max_entries": map[string]any{
						"type":        "integer",
						"description": "Maximum number of entries to return (default 200).",
					},
				},
			},
		},
	}
}

var errEntryLimit = errors.New("entry limit reached")

func (l ListDirTool) Call(ctx context.Context, args map[string]any) (string, error) {
	target := ""
	if provided, ok := stringArg(args, "path"); ok {
		target = provided
	}
	root, err := l.guard.Resolve(target)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", l.guard.Rel(root))
	}
	includeHidden := boolArg(args, "include_hidden", false)
	recursive := boolArg(args, "recursive", false)
	maxEntries := intArg(args, "max_entries", 200)
	if maxEntries <= 0 {
		maxEntries = 200
	}

	type entry struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	results := make([]entry, 0, maxEntries)
	truncated := false

	addEntry := func(path string, isDir bool) bool {
		if len(results) >= maxEntries {
			truncated = true
			return false
		}
		rel := l.guard.Rel(path)
		if rel == "." {
			return true
		}
		if !includeHidden && strings.HasPrefix(filepath.Base(path), ".") {
			return true
		}
		results = append(results, entry{Path: rel, Type: typeOf(isDir)})
		return true
	}

	if recursive {
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if path == root {
				return nil
			}
			if d.IsDir() && !includeHidden && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !addEntry(path, d.IsDir()) {
				return errEntryLimit
			}
			return nil
		})
		if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, errEntryLimit) {
			return "", walkErr
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if !addEntry(filepath.Join(root, e.Name()), e.IsDir()) {
				break
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	payload := map[string]any{
		"path":      l.guard.Rel(root),
		"entries":   results,
		"truncated": truncated,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MakeDirTool creates a directory including parents.
type MakeDirTool struct {
	guard pathGuard
}

func (MakeDirTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "make_dir",
			Description: "Create a directory (including parent directories) inside the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory path to create, relative to the workspace root.",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

func (m MakeDirTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", errors.New("path is required")
	}
	abs, err := m.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf("Created %s", m.guard.Rel(abs)), nil
}

// MoveFileTool moves or renames files and directories.
type MoveFileTool struct {
	guard pathGuard
}

func (MoveFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "move_file",
			Description: "Move or rename a file or directory. Both source and destination must stay within the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"src": map[string]any{
						"type":        "string",
						"description": "Source path relative to the workspace root.",
					},
					"dst": map[string]any{
						"type":        "string",
						"description": "Destination path relative to the workspace root.",
					},
				},
				"required": []string{"src", "dst"},
			},
		},
	}
}

func (m MoveFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	src, dst, err := srcDstArgs(m.guard, args)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, m.guard.Rel(src))
		}
		return "", err
	}
	return fmt.Sprintf("Moved %s to %s", m.guard.Rel(src), m.guard.Rel(dst)), nil
}

// CopyFileTool copies a single file.
type CopyFileTool struct {
	guard pathGuard
}

func (CopyFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "copy_file",
			Description: "Copy a file (directories are not supported). Both paths must stay within the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"src": map[string]any{
						"type":        "string",
						"description": "Source path relative to the workspace root.",
					},
					"dst": map[string]any{
						"type":        "string",
						"description": "Destination path relative to the workspace root.",
					},
				},
				"required": []string{"src", "dst"},
			},
		},
	}
}

func (c CopyFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	src, dst, err := srcDstArgs(c.guard, args)
	if err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, c.guard.Rel(src))
		}
		return "", err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", c.guard.Rel(src))
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", err
	}
	defer out.Close()
	n, err := io.Copy(out, in)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Copied %d bytes to %s", n, c.guard.Rel(dst)), nil
}

// RemoveTool deletes files or directories.
type RemoveTool struct {
	guard pathGuard
}

func (RemoveTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "remove",
			Description: "Remove a file or directory inside the workspace root. Removing a non-empty directory requires recursive=true.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to remove, relative to the workspace root.",
					},
					"recursive": map[string]any{
						"type":        "boolean",
						"description": "Remove directories and their contents recursively.",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

func (r RemoveTool) Call(ctx context.Context, args map[string]any) (string, error) {
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
	if abs == r.guard.Root() {
		return "", errors.New("refusing to remove the workspace root")
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}
	if info.IsDir() && boolArg(args, "recursive", false) {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %s", r.guard.Rel(abs)), nil
}

func srcDstArgs(guard pathGuard, args map[string]any) (string, string, error) {
	srcRaw, ok := stringArg(args, "src")
	if !ok || srcRaw == "" {
		return "", "", errors.New("src is required")
	}
	dstRaw, ok := stringArg(args, "dst")
	if !ok || dstRaw == "" {
		return "", "", errors.New("dst is required")
	}
	src, err := guard.Resolve(srcRaw)
	if err != nil {
		return "", "", err
	}
	dst, err := guard.Resolve(dstRaw)
	if err != nil {
		return "", "", err
	}
	return src, dst, nil
}

func typeOf(isDir bool) string {
	if isDir {
		return "directory"
	}
	return "file"
}
