package prompts

import (
	_ "embed"
	"strings"
	"sync"
)

//go:embed system_pico.txt
var baseSystemPrompt string

// PlanPrefix is prepended to user messages while the agent is in plan mode.
const PlanPrefix = "You are in plan mode. Investigate and produce a step-by-step plan, " +
	"but do not modify any files or run any commands that change state. " +
	"User request: "

var (
	metadataMu sync.RWMutex
	metadata   string
)

// Base returns the built-in Pico system prompt.
func Base() string {
	return strings.TrimSpace(baseSystemPrompt)
}

// Combine joins the built-in prompt with a persona prompt, an optional
// user-provided prompt, and the AGENTS.md extension, in that order.
func Combine(persona, user, extension string) string {
	var sections []string
	if p := strings.TrimSpace(persona); p != "" {
		sections = append(sections, p)
	}
	sections = append(sections, Base())

	if meta := getMetadata(); meta != "" {
		sections = append(sections, "## Environment Context\n"+meta)
	}
	if u := strings.TrimSpace(user); u != "" {
		sections = append(sections, u)
	}
	if ext := strings.TrimSpace(extension); ext != "" {
		sections = append(sections, ext)
	}

	return strings.Join(sections, "\n\n")
}

// SetMetadata defines the environment metadata appended to the system prompt.
func SetMetadata(info string) {
	metadataMu.Lock()
	defer metadataMu.Unlock()
	metadata = strings.TrimSpace(info)
}

func getMetadata() string {
	metadataMu.RLock()
	defer metadataMu.RUnlock()
	return metadata
}
