package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"pico/internal/agent"
	"pico/internal/config"
	"pico/internal/llm"
	mockclient "pico/internal/llm/mockclient"
	"pico/internal/logging"
	"pico/internal/openrouter"
	"pico/internal/persona"
	"pico/internal/prompts"
	"pico/internal/state"
	"pico/internal/tooling"
)

// Version is set via -ldflags during build
var Version = "dev"

func main() {
	var (
		configPath   = flag.String("config", "", "Path to config file (default: ~/.pico/config.yaml)")
		sandboxPath  = flag.String("sandbox", "", "Override workspace root/sandbox directory")
		providerFlag = flag.String("provider", "", "Override provider (openrouter, mock)")
		modelFlag    = flag.String("model", "", "Override model identifier")
		promptFlag   = flag.String("p", "", "Execute a single prompt and exit (non-interactive mode)")
		personaFlag  = flag.String("persona", "", "Persona to layer on the system prompt (see -list-personas)")
		recipeFlag   = flag.String("recipe", "", "Run a named recipe from config and exit")
		yoloFlag     = flag.Bool("yolo", false, "Skip confirmation prompts for destructive tools")
		quietFlag    = flag.Bool("quiet", false, "Suppress tool call narration")
		resumeKey    = flag.String("resume", "", "Resume an existing session key")
		listSessions = flag.Bool("list-sessions", false, "List stored sessions and exit")
		listPersonas = flag.Bool("list-personas", false, "List available personas and exit")
		limitFlag    = flag.Int("tool-call-limit", 0, "Override the per-turn tool call budget")
		versionFlag  = flag.Bool("version", false, "Print version and exit")
	)
	flag.StringVar(promptFlag, "prompt", "", "Execute a single prompt and exit (non-interactive mode)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("pico version %s\n", Version)
		return
	}
	if *listPersonas {
		fmt.Println("Available personas:")
		fmt.Print(persona.List())
		return
	}

	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadUserConfig()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.OverrideWorkspaceRoot(*sandboxPath)
	if *providerFlag != "" {
		cfg.Provider = strings.ToLower(strings.TrimSpace(*providerFlag))
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *limitFlag > 0 {
		cfg.ToolCallLimit = *limitFlag
	}
	yolo := cfg.Yolo || *yoloFlag
	quiet := *quietFlag
	personaName := strings.TrimSpace(*personaFlag)
	if personaName == "" {
		personaName = strings.TrimSpace(cfg.Persona)
	}

	// A recipe is a stored one-shot invocation; its overrides apply before
	// any wiring happens.
	oneShot := strings.TrimSpace(*promptFlag)
	var activeRecipe *config.Recipe
	if name := strings.TrimSpace(*recipeFlag); name != "" {
		recipe, ok := cfg.Recipes[name]
		if !ok {
			log.Fatalf("Unknown recipe %q. Configured recipes: %s", name, strings.Join(recipeNames(cfg), ", "))
		}
		prompt, err := recipe.ResolvePrompt()
		if err != nil {
			log.Fatalf("Recipe %q: %v", name, err)
		}
		oneShot = prompt
		if recipe.Provider != "" {
			cfg.Provider = strings.ToLower(recipe.Provider)
		}
		if recipe.Model != "" {
			cfg.Model = recipe.Model
		}
		if recipe.Persona != "" {
			personaName = recipe.Persona
		}
		if recipe.Yolo != nil {
			yolo = *recipe.Yolo
		}
		if recipe.Quiet {
			quiet = true
		}
		activeRecipe = &recipe
	}

	absRoot, err := filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		log.Fatalf("Failed to resolve workspace root: %v", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		log.Fatalf("Failed to create workspace root: %v", err)
	}
	cfg.WorkspaceRoot = absRoot

	logging.Setup(cfg.LogPath, quiet)
	prompts.SetMetadata(fmt.Sprintf("cwd: %s", absRoot))

	personaPrompt := ""
	if personaName != "" {
		prompt, ok := persona.Get(personaName)
		if !ok {
			log.Fatalf("Unknown persona %q. Available personas:\n%s", personaName, persona.List())
		}
		personaPrompt = prompt
	}
	systemPrompt := prompts.Combine(personaPrompt, cfg.SystemPrompt, loadAgentsFile(absRoot))

	client, err := buildClient(cfg)
	if err != nil {
		log.Fatalf("Failed to init provider: %v", err)
	}

	states, err := state.NewManager(cfg.SessionStorePath)
	if err != nil {
		log.Fatalf("Failed to init session store: %v", err)
	}
	defer states.Close()
	states.SetSystemPrompt(systemPrompt)

	if *listSessions {
		keys := states.ListKeys()
		if len(keys) == 0 {
			fmt.Println("No stored sessions.")
			return
		}
		fmt.Println("Sessions:")
		for _, key := range keys {
			fmt.Printf("  - %s\n", key)
		}
		return
	}

	baseTools, err := tooling.DefaultTools(tooling.Options{
		WorkspaceRoot: absRoot,
		ShellTimeout:  cfg.ShellTimeout(),
		FetchTimeout:  cfg.RequestTimeout(),
	})
	if err != nil {
		log.Fatalf("Failed to init tools: %v", err)
	}
	registry := tooling.NewRegistry(baseTools...)

	gate, err := agent.NewConfirmationGate(yolo, cfg.ToolConfig.Bash.AutoAllow, agent.NewTerminalConfirmer())
	if err != nil {
		log.Fatalf("Failed to init confirmation gate: %v", err)
	}

	cfg.Yolo = yolo
	ag, err := agent.New(client, cfg, states, registry, gate, agent.Options{
		ResumeKey:   strings.TrimSpace(*resumeKey),
		PersonaName: personaName,
		Version:     Version,
		Quiet:       quiet,
	})
	if err != nil {
		log.Fatalf("Failed to init agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if oneShot != "" {
		runOneShot(ctx, ag, oneShot, activeRecipe, quiet)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.DevLog("received SIGTERM, shutting down")
		cancel()
	}()

	if err := ag.Run(ctx); err != nil {
		log.Fatalf("Agent failed: %v", err)
	}
}

// runOneShot prints the final response and exits non-zero when a recipe's
// error_if pattern matches it.
func runOneShot(ctx context.Context, ag *agent.Agent, prompt string, recipe *config.Recipe, quiet bool) {
	response, err := ag.RunOneShot(ctx, prompt)
	if err != nil {
		log.Fatalf("Prompt failed: %v", err)
	}
	if response != "" {
		fmt.Println(response)
	}
	if recipe != nil && recipe.IsError(response) {
		if !quiet {
			fmt.Fprintln(os.Stderr, "recipe error_if pattern matched the response")
		}
		os.Exit(1)
	}
}

func buildClient(cfg config.Config) (llm.Client, error) {
	provider := strings.ToLower(cfg.Provider)
	if os.Getenv("PICO_MOCK_LLM") == "1" {
		provider = "mock"
	}
	switch provider {
	case "mock":
		return mockclient.New(), nil
	case "openrouter":
		apiKey := os.Getenv("OPENROUTER_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
		}
		return openrouter.NewClient(cfg.BaseURL, apiKey, cfg.RequestTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: openrouter, mock)", cfg.Provider)
	}
}

// loadAgentsFile reads the workspace AGENTS.md so project conventions reach
// the system prompt. A missing file is not an error.
func loadAgentsFile(workspaceRoot string) string {
	data, err := os.ReadFile(filepath.Join(workspaceRoot, "AGENTS.md"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func recipeNames(cfg config.Config) []string {
	names := make([]string, 0, len(cfg.Recipes))
	for name := range cfg.Recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
