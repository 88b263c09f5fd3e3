package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "provider: openrouter\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ToolCallLimit != DefaultToolCallLimit {
		t.Errorf("ToolCallLimit = %d, want %d", cfg.ToolCallLimit, DefaultToolCallLimit)
	}
	if cfg.Mode != "code" {
		t.Errorf("Mode = %q, want code", cfg.Mode)
	}
	if cfg.BaseURL == "" || cfg.WorkspaceRoot == "" {
		t.Error("expected defaulted base_url and workspace_root")
	}
	if cfg.RequestTimeoutSeconds != 90 || cfg.ShellTimeoutSeconds != 60 {
		t.Errorf("timeouts = %d/%d", cfg.RequestTimeoutSeconds, cfg.ShellTimeoutSeconds)
	}
}

func TestLoadParsesToolConfigAndRecipes(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"provider: openrouter",
		"tool_call_limit: 10",
		"tool_config:",
		"  bash:",
		"    auto_allow:",
		"      - '^git status'",
		"      - '^ls '",
		"recipes:",
		"  review:",
		"    prompt: Review the staged diff and flag problems.",
		"    persona: strict",
		"    quiet: true",
		"    error_if: 'PROBLEM|FIXME'",
	}, "\n") + "\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ToolCallLimit != 10 {
		t.Errorf("ToolCallLimit = %d, want 10", cfg.ToolCallLimit)
	}
	if len(cfg.ToolConfig.Bash.AutoAllow) != 2 {
		t.Fatalf("AutoAllow = %v", cfg.ToolConfig.Bash.AutoAllow)
	}
	recipe, ok := cfg.Recipes["review"]
	if !ok {
		t.Fatal("missing recipe 'review'")
	}
	if recipe.Persona != "strict" || !recipe.Quiet {
		t.Errorf("recipe = %+v", recipe)
	}
	prompt, err := recipe.ResolvePrompt()
	if err != nil || !strings.Contains(prompt, "staged diff") {
		t.Errorf("ResolvePrompt = %q, %v", prompt, err)
	}
	if !recipe.IsError("PROBLEM: unchecked error in main") {
		t.Error("expected error_if to match flagged response")
	}
	if recipe.IsError("Looks good to me.") {
		t.Error("error_if matched a clean response")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []string{
		"mode: chaos\n",
		"temperature: 3.0\n",
		"request_timeout_seconds: 1200\n",
		"tool_config:\n  bash:\n    auto_allow:\n      - '('\n",
		"recipes:\n  broken:\n    persona: zen\n",
		"recipes:\n  broken:\n    prompt: hi\n    error_if: '('\n",
	}
	for _, content := range cases {
		path := writeConfig(t, content)
		if _, err := Load(path); err == nil {
			t.Errorf("Load accepted invalid config:\n%s", content)
		}
	}
}

func TestModelForFallbacks(t *testing.T) {
	cfg := Config{}
	if got := cfg.ModelFor("openrouter"); got != DefaultOpenRouterModel {
		t.Errorf("ModelFor(openrouter) = %q", got)
	}
	if got := cfg.ModelFor("mock"); got != DefaultMockModel {
		t.Errorf("ModelFor(mock) = %q", got)
	}

	cfg.ProviderModels = map[string]string{"openrouter": "qwen/qwen3-coder"}
	if got := cfg.ModelFor("openrouter"); got != "qwen/qwen3-coder" {
		t.Errorf("ModelFor(openrouter) = %q", got)
	}

	cfg = Config{Model: "custom-model"}
	if got := cfg.ModelFor("openrouter"); got != "custom-model" {
		t.Errorf("ModelFor with explicit model = %q", got)
	}
}

func TestRecipeWithoutErrorIfNeverFails(t *testing.T) {
	recipe := Recipe{Prompt: "summarize the repo"}
	if recipe.IsError("anything at all") {
		t.Error("recipe without error_if reported an error")
	}
}

func TestRecipeResolvePromptFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("audit dependencies\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	recipe := Recipe{PromptFile: path}
	prompt, err := recipe.ResolvePrompt()
	if err != nil {
		t.Fatalf("ResolvePrompt: %v", err)
	}
	if !strings.Contains(prompt, "audit dependencies") {
		t.Errorf("prompt = %q", prompt)
	}

	recipe = Recipe{PromptFile: filepath.Join(t.TempDir(), "missing.txt")}
	if _, err := recipe.ResolvePrompt(); err == nil {
		t.Error("expected error for missing prompt file")
	}
}
