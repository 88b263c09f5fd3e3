package tooling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// BrowserTool drives a headless browser through the external agent_browser
// CLI. The binary is optional; when it is not installed the tool reports
// itself unavailable instead of failing the whole session.
type BrowserTool struct {
	timeout time.Duration
}

func NewBrowserTool(timeout time.Duration) *BrowserTool {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &BrowserTool{timeout: timeout}
}

func (BrowserTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "agent_browser",
			Description: "Control a headless browser via the agent_browser CLI. Pass subcommands such as 'open <url>', 'click <selector>', 'type <selector> <text>', 'snapshot' or 'close'. Use this for pages that need JavaScript; prefer web_fetch for static content.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The agent_browser subcommand and its arguments as a single string.",
					},
				},
				"required": []string{"command"},
			},
		},
	}
}

func (b *BrowserTool) Call(ctx context.Context, args map[string]any) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return "", errors.New("command is required")
	}

	bin, err := exec.LookPath("agent_browser")
	if err != nil {
		return "", fmt.Errorf("%w: agent_browser CLI is not installed", ErrToolUnavailable)
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, strings.Fields(command)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("agent_browser timed out after %s", b.timeout)
		}
		return "", fmt.Errorf("agent_browser: %w: %s", err, strings.TrimSpace(out.String()))
	}
	return truncateOutput(out.String(), 32*1024), nil
}
