package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ToolDefinition describes one callable function in the OpenAI tool schema.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is a named executor with a typed argument contract. Implementations
// must be deterministic given the workspace state and must confine all
// filesystem access to the sandbox root.
type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry is the closed name-to-executor mapping built once at startup.
// Adding a tool means adding an executor and a DefaultTools entry, never
// introspection.
type Registry struct {
	tools       map[string]Tool
	definitions []ToolDefinition
}

func NewRegistry(tools ...Tool) *Registry {
	bucket := make(map[string]Tool, len(tools))
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		bucket[def.Function.Name] = tool
		defs = append(defs, def)
	}
	return &Registry{tools: bucket, definitions: defs}
}

func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Options configures the default tool set.
type Options struct {
	WorkspaceRoot string
	ShellTimeout  time.Duration
	FetchTimeout  time.Duration
}

// DefaultTools builds the full executor set rooted at the workspace.
func DefaultTools(opts Options) ([]Tool, error) {
	guard, err := newPathGuard(opts.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(guard.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	shellTimeout := opts.ShellTimeout
	if shellTimeout <= 0 {
		shellTimeout = 60 * time.Second
	}

	return []Tool{
		ReadFileTool{guard: guard},
		NewWriteFileTool(guard),
		NewEditFileTool(guard),
		ListDirTool{guard: guard},
		MakeDirTool{guard: guard},
		MoveFileTool{guard: guard},
		CopyFileTool{guard: guard},
		RemoveTool{guard: guard},
		NewGrepTool(guard),
		NewGlobTool(guard),
		NewBashTool(guard, shellTimeout),
		NewBrowserTool(shellTimeout),
		NewWebFetchTool(opts.FetchTimeout),
	}, nil
}

// DestructiveTools names the executors that mutate workspace state or run
// arbitrary programs; the confirmation gate consults this set.
var DestructiveTools = map[string]bool{
	"bash":       true,
	"remove":     true,
	"write_file": true,
	"move_file":  true,
	"edit_file":  true,
}

func stringArg(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	switch cast := val.(type) {
	case string:
		return cast, true
	default:
		return fmt.Sprintf("%v", cast), true
	}
}

func boolArg(args map[string]any, key string, defaultVal bool) bool {
	val, ok := args[key]
	if !ok {
		return defaultVal
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return defaultVal
}

func intArg(args map[string]any, key string, defaultVal int) int {
	val, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch n := val.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return defaultVal
	}
}

// jsonMarshalNoEscape marshals without HTML-escaping <, > and &, which keeps
// page text readable inside tool results.
func jsonMarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// writeFileAtomic writes data through a temporary file in the target's
// directory and renames it into place, so a concurrent reader never sees
// partial content and a failed write leaves the original bytes untouched.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
