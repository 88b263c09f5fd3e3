package tooling

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GrepTool searches file contents using regex patterns. Matches come back
// ordered by file path then line number so repeated runs are reproducible.
type GrepTool struct {
	guard pathGuard
}

type grepMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func NewGrepTool(guard pathGuard) *GrepTool {
	return &GrepTool{guard: guard}
}

func (GrepTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "grep_text",
			Description: "Search file contents under the workspace root using a regex pattern. Returns matches as file/line/text, ordered by file path then line number. Optionally filter files with a glob pattern on the file name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Regular expression pattern to search for.",
					},
					"path_glob": map[string]any{
						"type":        "string",
						"description": "Glob pattern to filter files (e.g. '*.go'). Matches against the base name or the root-relative path.",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Directory to search (default: workspace root).",
					},
					"case_insensitive": map[string]any{
						"type":        "boolean",
						"description": "Perform case-insensitive search (default false).",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of matches to return (default 100).",
					},
				},
				"required": []string{"pattern"},
			},
		},
	}
}

func (g *GrepTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	patternStr, ok := stringArg(args, "pattern")
	if !ok || patternStr == "" {
		return "", errors.New("pattern is required")
	}
	if boolArg(args, "case_insensitive", false) {
		patternStr = "(?i)" + patternStr
	}
	pattern, err := regexp.Compile(patternStr)
	if err != nil {
		return "", fmt.Errorf("invalid regex pattern: %w", err)
	}

	searchPath := ""
	if provided, ok := stringArg(args, "path"); ok {
		searchPath = provided
	}
	root, err := g.guard.Resolve(searchPath)
	if err != nil {
		return "", err
	}
	pathGlob, _ := stringArg(args, "path_glob")
	maxResults := intArg(args, "max_results", 100)
	if maxResults <= 0 {
		maxResults = 100
	}

	var matches []grepMatch
	truncated := false
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // skip unreadable entries
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
		if pathGlob != "" {
			baseOK, _ := filepath.Match(pathGlob, filepath.Base(path))
			relOK, _ := filepath.Match(pathGlob, rel)
			if !baseOK && !relOK {
				return nil
			}
		}
		if isBinaryFile(path) {
			return nil
		}
		fileMatches, err := grepFile(path, rel, pattern, maxResults-len(matches))
		if err != nil {
			return nil
		}
		matches = append(matches, fileMatches...)
		if len(matches) >= maxResults {
			truncated = true
			return errEntryLimit
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errEntryLimit) {
		if errors.Is(walkErr, context.Canceled) {
			return "", walkErr
		}
		return "", walkErr
	}

	payload := map[string]any{
		"pattern":   patternStr,
		"count":     len(matches),
		"matches":   matches,
		"truncated": truncated,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func grepFile(path, rel string, pattern *regexp.Regexp, budget int) ([]grepMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []grepMatch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !pattern.MatchString(line) {
			continue
		}
		matches = append(matches, grepMatch{File: rel, Line: lineNum, Text: line})
		if budget > 0 && len(matches) >= budget {
			break
		}
	}
	return matches, scanner.Err()
}

// isBinaryFile sniffs the first bytes for NUL to skip non-text content.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
