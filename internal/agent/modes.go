package agent

import (
	"fmt"
	"strings"
	"sync"

	"pico/internal/prompts"
)

// Mode selects how user input is framed before it reaches the model.
type Mode int

const (
	// ModeCode is the default mode; input is passed through untouched.
	ModeCode Mode = iota
	// ModePlan prefixes input with an instruction to plan without acting.
	ModePlan
)

func (m Mode) String() string {
	if m == ModePlan {
		return "plan"
	}
	return "code"
}

// ParseMode maps a config or command string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "code":
		return ModeCode, nil
	case "plan":
		return ModePlan, nil
	default:
		return ModeCode, fmt.Errorf("unknown mode %q", s)
	}
}

// ModeController tracks the current mode. Only user commands switch modes;
// the model never changes them. The conversation history is shared across
// modes, so switching never resets context.
type ModeController struct {
	mu   sync.Mutex
	mode Mode
}

func NewModeController(initial Mode) *ModeController {
	return &ModeController{mode: initial}
}

func (c *ModeController) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *ModeController) Set(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

// Decorate applies the current mode's prefix to a user message. The stored
// history keeps the decorated text so the model sees exactly what was sent.
func (c *ModeController) Decorate(input string) string {
	if c.Mode() == ModePlan {
		return prompts.PlanPrefix + input
	}
	return input
}
