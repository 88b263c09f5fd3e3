package agent

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"pico/internal/tooling"
)

// Confirmer asks the user to approve a destructive tool call.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// TerminalConfirmer reads y/n answers from stdin. Anything other than an
// explicit yes counts as a denial.
type TerminalConfirmer struct {
	reader *bufio.Reader
}

func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{reader: bufio.NewReader(os.Stdin)}
}

func (c *TerminalConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// ConfirmationGate decides whether a tool call may run. Non-destructive
// tools always pass. Destructive tools pass in yolo mode, or for bash when
// an auto_allow pattern matches the command; everything else goes to the
// confirmer.
type ConfirmationGate struct {
	yolo      bool
	autoAllow []*regexp.Regexp
	confirmer Confirmer
}

func NewConfirmationGate(yolo bool, bashAutoAllow []string, confirmer Confirmer) (*ConfirmationGate, error) {
	patterns := make([]*regexp.Regexp, 0, len(bashAutoAllow))
	for _, raw := range bashAutoAllow {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid auto_allow pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}
	return &ConfirmationGate{yolo: yolo, autoAllow: patterns, confirmer: confirmer}, nil
}

// Approve reports whether the named tool call may execute. A false result
// with a nil error is a user denial, which the turn records as a tool result
// and keeps going.
func (g *ConfirmationGate) Approve(name string, args map[string]any) (bool, error) {
	if !tooling.DestructiveTools[name] {
		return true, nil
	}
	if g.yolo {
		return true, nil
	}
	if name == "bash" {
		if command, ok := args["command"].(string); ok {
			for _, re := range g.autoAllow {
				if re.MatchString(command) {
					return true, nil
				}
			}
		}
	}
	if g.confirmer == nil {
		return false, nil
	}
	return g.confirmer.Confirm(confirmPrompt(name, args))
}

func confirmPrompt(name string, args map[string]any) string {
	if name == "bash" {
		if command, ok := args["command"].(string); ok && command != "" {
			return fmt.Sprintf("Run `%s`?", command)
		}
	}
	if path, ok := args["path"].(string); ok && path != "" {
		return fmt.Sprintf("Confirm tool %s on %s?", strings.ToUpper(name), path)
	}
	return fmt.Sprintf("Confirm tool %s call?", strings.ToUpper(name))
}
