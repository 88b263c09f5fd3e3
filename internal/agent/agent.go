package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"pico/internal/config"
	"pico/internal/llm"
	"pico/internal/logging"
	"pico/internal/state"
	"pico/internal/tooling"
)

var commandSuggestions = []prompt.Suggest{
	{Text: "/help", Description: "show this text"},
	{Text: "/plan", Description: "switch to plan mode (investigate, no edits)"},
	{Text: "/code", Description: "switch back to code mode"},
	{Text: "/go", Description: "switch to code mode and implement the current plan"},
	{Text: "/sessions", Description: "list stored session keys"},
	{Text: "/use", Description: "switch to a session (creates if missing)"},
	{Text: "/new", Description: "create and switch to a blank session"},
	{Text: "/clear", Description: "wipe the current session's history"},
	{Text: "/drop", Description: "delete a stored session"},
	{Text: "/tools", Description: "list registered tools"},
	{Text: "/q", Description: "exit the program"},
	{Text: "/quit", Description: "exit the program"},
}

type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
}

func newInterruptTracker(window time.Duration) *interruptTracker {
	return &interruptTracker{window: window}
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}

type promptExit struct{}

// Agent owns the interactive loop: it reads input, routes slash commands,
// and hands everything else to the turn loop.
type Agent struct {
	client      llm.Client
	cfg         config.Config
	states      *state.Manager
	tools       *tooling.Registry
	turns       *TurnLoop
	modes       *ModeController
	render      *glamour.TermRenderer
	isTTY       bool
	model       string
	personaName string
	version     string
	resumeKey   string
	quiet       bool

	requestCancelMu sync.Mutex
	requestCancel   context.CancelFunc
	sessionOnce     sync.Once
	sessionOnceErr  error
}

type Options struct {
	ResumeKey   string
	PersonaName string
	Version     string
	Quiet       bool
}

// New returns a fully wired Agent ready for the REPL loop.
func New(client llm.Client, cfg config.Config, mgr *state.Manager, registry *tooling.Registry, gate *ConfirmationGate, opts Options) (*Agent, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		client:      client,
		cfg:         cfg,
		states:      mgr,
		tools:       registry,
		modes:       NewModeController(mode),
		render:      newRenderer(),
		isTTY:       term.IsTerminal(int(os.Stdin.Fd())),
		model:       cfg.ModelFor(cfg.Provider),
		personaName: opts.PersonaName,
		version:     opts.Version,
		resumeKey:   strings.TrimSpace(opts.ResumeKey),
		quiet:       opts.Quiet,
	}
	a.turns = NewTurnLoop(client, mgr, registry, gate, a.model, cfg.Temperature, cfg.ToolCallLimit, a.hooks())
	return a, nil
}

func (a *Agent) hooks() Hooks {
	if a.quiet {
		return Hooks{}
	}
	return Hooks{
		OnToolCall: func(name, arguments string) {
			fmt.Printf("→ %s %s\n", name, previewLine(arguments, 120))
		},
		OnToolResult: func(name, result string, failed bool) {
			if failed {
				fmt.Printf("  %s failed: %s\n", name, previewLine(result, 160))
			}
		},
	}
}

func previewLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

// Run starts the CLI prompt and blocks until the session finishes.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := newInterruptTracker(2 * time.Second)
	if a.isTTY {
		return a.runPrompt(ctx, cancel, tracker)
	}
	go a.handleInterrupts(ctx, cancel, tracker)
	return a.runNonInteractive(ctx, cancel)
}

// RunOneShot executes a single prompt and returns the final response text.
func (a *Agent) RunOneShot(ctx context.Context, input string) (string, error) {
	if err := a.ensureSessionSelected(); err != nil {
		return "", fmt.Errorf("ensure session: %w", err)
	}
	response, _, err := a.dispatch(ctx, input)
	if err != nil {
		return response, err
	}
	return response, nil
}

func (a *Agent) runPrompt(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) (err error) {
	a.printHeader()
	fmt.Println("Type /help for commands. Use double Ctrl+C to exit.")

	if err := a.ensureSessionSelected(); err != nil {
		return err
	}
	if msgs := a.states.Current().Messages(); len(msgs) > 1 {
		fmt.Printf("(resumed %d conversation messages)\n", len(msgs))
	}

	history := loadInputHistory(a.cfg.HistoryPath)

	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if st, terr := term.GetState(fd); terr == nil {
			restore = func() { _ = term.Restore(fd, st) }
		}
	}
	if restore != nil {
		defer restore()
	}

	var exitRequested atomic.Bool
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(in)
		if line == "" {
			return
		}
		history.Add(line)
		if exit := a.handleLine(ctx, line); exit {
			exitRequested.Store(true)
			cancel()
			panic(promptExit{})
		}
	}

	p := prompt.New(
		executor,
		a.commandCompleter(),
		prompt.OptionHistory(history.Entries()),
		prompt.OptionTitle("Pico"),
		prompt.OptionLivePrefix(func() (string, bool) {
			return fmt.Sprintf("[%s|%s] > ", a.states.Current().Key(), a.modes.Mode()), true
		}),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(buf *prompt.Buffer) {
					if a.cancelInFlightRequest() {
						fmt.Println("\n(Current request cancelled.)")
						return
					}
					if tracker.secondPress() {
						fmt.Println("\nReceived second Ctrl+C, exiting.")
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
					fmt.Println("\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
				},
			},
			prompt.KeyBind{
				Key: prompt.Escape,
				Fn: func(buf *prompt.Buffer) {
					if a.cancelInFlightRequest() {
						fmt.Println("\n(Request cancelled.)")
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			if exitRequested.Load() {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)

	p.Run()
	return nil
}

func (a *Agent) commandCompleter() func(prompt.Document) []prompt.Suggest {
	return func(doc prompt.Document) []prompt.Suggest {
		word := doc.GetWordBeforeCursor()
		prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
		if !strings.HasPrefix(prefix, "/") {
			return nil
		}
		return prompt.FilterHasPrefix(commandSuggestions, word, true)
	}
}

func (a *Agent) runNonInteractive(ctx context.Context, cancel context.CancelFunc) error {
	reader := bufio.NewReader(os.Stdin)

	a.printHeader()
	if err := a.ensureSessionSelected(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Printf("[%s|%s] > ", a.states.Current().Key(), a.modes.Mode())

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			if ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if exit := a.handleLine(ctx, trimLineEnding(line)); exit {
			cancel()
			return nil
		}
	}
}

func (a *Agent) handleInterrupts(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if a.cancelInFlightRequest() {
				fmt.Println("\n(Current request cancelled.)")
				continue
			}
			if tracker.secondPress() {
				fmt.Println("\nReceived second Ctrl+C, exiting.")
				cancel()
				return
			}
			fmt.Println("\n(Press Ctrl+C again within 2s to exit)")
		}
	}
}

func (a *Agent) handleLine(ctx context.Context, input string) bool {
	trimmedLeft := strings.TrimLeft(input, " \t")
	if trimmedLeft == "" {
		return false
	}

	if strings.HasPrefix(trimmedLeft, "/") {
		return a.handleCommand(ctx, strings.TrimSpace(input))
	}

	logging.DevLog("dispatching prompt: %d chars", len(input))
	response, finishReason, err := a.dispatch(ctx, input)
	logging.DevLog("response received: err=%v finish=%s len=%d", err, finishReason, len(response))
	if err != nil {
		switch {
		case errors.Is(err, ErrTurnLimit):
			fmt.Printf("(Tool call limit of %d reached for this turn. Send another message to continue.)\n", a.cfg.ToolCallLimit)
		case errors.Is(err, context.Canceled):
			fmt.Println("(Request cancelled.)")
		default:
			logging.ErrorLog("agent error: %v", err)
			fmt.Printf("Error: %v\n", err)
		}
		return false
	}
	if response != "" {
		a.printResponse(response)
	}
	return false
}

// dispatch runs one decorated user turn with a cancellable request context.
func (a *Agent) dispatch(ctx context.Context, input string) (string, string, error) {
	decorated := a.modes.Decorate(input)

	reqCtx, reqCancel := context.WithCancel(ctx)
	a.setInFlightCancel(reqCancel)
	response, finishReason, err := a.turns.Run(reqCtx, decorated)
	a.clearInFlightCancel()
	reqCancel()
	return response, finishReason, err
}

func (a *Agent) handleCommand(ctx context.Context, cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}
	switch parts[0] {
	case "/help":
		fmt.Println(`Commands:
  /help          show this text
  /plan          switch to plan mode (investigate and propose, no edits)
  /code          switch back to code mode
  /go            switch to code mode and implement the current plan
  /sessions      list stored session keys
  /use <key>     switch to a session (creates if missing)
  /new <key>     create and switch to a blank session
  /clear         wipe the current session's history
  /drop <key>    delete a stored session
  /tools         list registered tools
  /q, /quit      exit the program`)
	case "/plan":
		a.modes.Set(ModePlan)
		fmt.Println("Plan mode on. The assistant will investigate and propose, not edit.")
	case "/code":
		a.modes.Set(ModeCode)
		fmt.Println("Code mode on.")
	case "/go":
		a.modes.Set(ModeCode)
		fmt.Println("Code mode on. Implementing the plan.")
		return a.handleLine(ctx, "Implement the plan.")
	case "/sessions":
		keys := a.states.ListKeys()
		if len(keys) == 0 {
			fmt.Println("No sessions yet. Use /new <name> to create one.")
			return false
		}
		fmt.Printf("Sessions: %s\n", strings.Join(keys, ", "))
	case "/use":
		if len(parts) < 2 {
			fmt.Println("/use requires a key")
			return false
		}
		if _, err := a.states.EnsureSession(parts[1]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("Switched to %s\n", parts[1])
	case "/new":
		if len(parts) < 2 {
			fmt.Println("/new requires a key")
			return false
		}
		if _, err := a.states.NewSession(parts[1]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("Created new session %s\n", parts[1])
	case "/clear":
		if err := a.states.ClearCurrent(); err != nil {
			fmt.Printf("Clear failed: %v\n", err)
			return false
		}
		fmt.Println("Cleared current session.")
	case "/drop":
		if len(parts) < 2 {
			fmt.Println("/drop requires a key")
			return false
		}
		if err := a.states.Delete(parts[1]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("Removed session %s\n", parts[1])
	case "/tools":
		defs := a.tools.Definitions()
		if len(defs) == 0 {
			fmt.Println("No tools registered.")
			return false
		}
		fmt.Println("Tools:")
		for _, def := range defs {
			fmt.Printf("  - %s: %s\n", def.Function.Name, def.Function.Description)
		}
	case "/q", "/quit", "/exit":
		fmt.Println("Exiting per user request.")
		return true
	default:
		fmt.Printf("Unknown command %s. Try /help\n", parts[0])
	}
	return false
}

func (a *Agent) setInFlightCancel(cancel context.CancelFunc) {
	a.requestCancelMu.Lock()
	a.requestCancel = cancel
	a.requestCancelMu.Unlock()
}

func (a *Agent) clearInFlightCancel() {
	a.requestCancelMu.Lock()
	a.requestCancel = nil
	a.requestCancelMu.Unlock()
}

func (a *Agent) cancelInFlightRequest() bool {
	a.requestCancelMu.Lock()
	cancel := a.requestCancel
	a.requestCancel = nil
	a.requestCancelMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

func (a *Agent) ensureSessionSelected() error {
	a.sessionOnce.Do(func() {
		a.sessionOnceErr = a.initSessionSelection()
	})
	return a.sessionOnceErr
}

func (a *Agent) initSessionSelection() error {
	if key := a.resumeKey; key != "" {
		if _, err := a.states.Use(key); err != nil {
			logging.ErrorLog("failed to resume session %s: %v", key, err)
			return fmt.Errorf("resume session %s: %w", key, err)
		}
		logging.UserLog("Resumed session '%s'", key)
		return nil
	}
	if _, err := a.states.EnsureSession("default"); err != nil {
		return fmt.Errorf("open default session: %w", err)
	}
	return nil
}

func trimLineEnding(s string) string {
	s = strings.TrimSuffix(s, "\r\n")
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}
