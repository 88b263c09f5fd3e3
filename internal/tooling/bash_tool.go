package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// BashTool runs a shell command inside the workspace root. The command runs
// through /bin/sh -c so pipes and redirections work; a non-zero exit code is
// reported in the result payload rather than failing the call, because the
// model needs to see stderr to recover.
type BashTool struct {
	guard   pathGuard
	timeout time.Duration
}

func NewBashTool(guard pathGuard, timeout time.Duration) *BashTool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BashTool{guard: guard, timeout: timeout}
}

func (BashTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "bash",
			Description: "Run a shell command in the workspace root and return its stdout, stderr and exit code. The command is executed with /bin/sh -c. Avoid long-running or interactive commands.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The shell command to execute.",
					},
				},
				"required": []string{"command"},
			},
		},
	}
}

func (b *BashTool) Call(ctx context.Context, args map[string]any) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return "", errors.New("command is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = b.guard.Root()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return "", fmt.Errorf("command timed out after %s", b.timeout)
		case errors.Is(runCtx.Err(), context.Canceled):
			return "", context.Canceled
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return "", fmt.Errorf("run command: %w", runErr)
		}
	}

	payload := map[string]any{
		"command":   command,
		"exit_code": exitCode,
		"stdout":    truncateOutput(stdout.String(), 32*1024),
		"stderr":    truncateOutput(stderr.String(), 8*1024),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func truncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n... [truncated %d bytes]", len(s)-limit)
}
