package agent

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

func newRenderer() *glamour.TermRenderer {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return nil
	}
	return r
}

func (a *Agent) printResponse(text string) {
	if a.render == nil || strings.TrimSpace(text) == "" {
		fmt.Printf("%s\n", text)
		return
	}
	rendered, err := a.render.Render(text)
	if err != nil {
		fmt.Printf("%s\n", text)
		return
	}
	fmt.Print(strings.TrimRight(rendered, "\n") + "\n")
}

// printHeader shows the session banner with the active provider, model and
// safety settings.
func (a *Agent) printHeader() {
	fmt.Printf("pico %s | provider: %s | model: %s\n", a.version, a.cfg.Provider, a.model)
	flags := []string{fmt.Sprintf("mode: %s", a.modes.Mode())}
	if a.cfg.Yolo {
		flags = append(flags, "yolo: on")
	}
	flags = append(flags, fmt.Sprintf("tool call limit: %d", a.cfg.ToolCallLimit))
	if a.personaName != "" {
		flags = append(flags, fmt.Sprintf("persona: %s", a.personaName))
	}
	fmt.Println(strings.Join(flags, " | "))
	fmt.Printf("workspace: %s\n", a.cfg.WorkspaceRoot)
}
