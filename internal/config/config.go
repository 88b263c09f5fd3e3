package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider-specific default model constants
const (
	DefaultOpenRouterModel = "deepseek/deepseek-chat-v3-0324"
	DefaultMockModel       = "mock-model"
)

// DefaultToolCallLimit bounds how many tool calls a single turn may execute.
const DefaultToolCallLimit = 50

// BashConfig tunes the bash executor, most importantly which commands skip
// the confirmation prompt.
type BashConfig struct {
	// AutoAllow holds ordered regex patterns; the first pattern that matches
	// a command decides it is safe to run without confirmation.
	AutoAllow []string `yaml:"auto_allow"`
}

// ToolConfig groups per-tool settings.
type ToolConfig struct {
	Bash BashConfig `yaml:"bash"`
}

// Recipe is a named one-shot preset: a prompt plus optional overrides for
// model, persona and confirmation behavior. ErrorIf is a regex matched
// against the final response; a match makes the run exit non-zero.
type Recipe struct {
	Prompt     string `yaml:"prompt"`
	PromptFile string `yaml:"prompt_file"`
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Persona    string `yaml:"persona"`
	Yolo       *bool  `yaml:"yolo"`
	Quiet      bool   `yaml:"quiet"`
	ErrorIf    string `yaml:"error_if"`
}

// ResolvePrompt returns the recipe prompt, reading prompt_file when set.
func (r Recipe) ResolvePrompt() (string, error) {
	if r.PromptFile != "" {
		data, err := os.ReadFile(r.PromptFile)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return string(data), nil
	}
	return r.Prompt, nil
}

// IsError reports whether the response matches the recipe's error_if regex.
func (r Recipe) IsError(response string) bool {
	if strings.TrimSpace(r.ErrorIf) == "" {
		return false
	}
	re, err := regexp.Compile(r.ErrorIf)
	if err != nil {
		return false
	}
	return re.MatchString(response)
}

// Config captures the tunable runtime settings for the agent.
type Config struct {
	Provider              string            `yaml:"provider"`
	Model                 string            `yaml:"model"`
	ProviderModels        map[string]string `yaml:"provider_models"`
	BaseURL               string            `yaml:"base_url"`
	Temperature           float64           `yaml:"temperature"`
	SystemPrompt          string            `yaml:"system_prompt"`
	Persona               string            `yaml:"persona"`
	Mode                  string            `yaml:"mode"`
	Yolo                  bool              `yaml:"yolo"`
	ToolCallLimit         int               `yaml:"tool_call_limit"`
	ToolConfig            ToolConfig        `yaml:"tool_config"`
	Recipes               map[string]Recipe `yaml:"recipes"`
	WorkspaceRoot         string            `yaml:"workspace_root"`
	RequestTimeoutSeconds int               `yaml:"request_timeout_seconds"`
	ShellTimeoutSeconds   int               `yaml:"shell_timeout_seconds"`
	SessionStorePath      string            `yaml:"session_store_path"`
	HistoryPath           string            `yaml:"history_path"`
	LogPath               string            `yaml:"log_path"`
}

// LoadUserConfig loads configuration from ~/.pico/config.yaml.
// Checks PICO_CONFIG_PATH environment variable first.
// If the file doesn't exist, returns defaults.
func LoadUserConfig() (Config, error) {
	configPath := os.Getenv("PICO_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg, nil
	}

	return Load(configPath)
}

// Load reads the YAML configuration from disk and injects sane defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openrouter"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.Mode == "" {
		c.Mode = "code"
	}
	if c.ToolCallLimit <= 0 {
		c.ToolCallLimit = DefaultToolCallLimit
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 90
	}
	if c.ShellTimeoutSeconds <= 0 {
		c.ShellTimeoutSeconds = 60
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "."
	}
	if c.SessionStorePath == "" {
		c.SessionStorePath = filepath.Join(GetConfigDir(), "sessions.db")
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(GetConfigDir(), "history")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(GetConfigDir(), "pico.log")
	}
}

func (c Config) validate() error {
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %f)", c.Temperature)
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.ShellTimeoutSeconds > 600 {
		return fmt.Errorf("shell_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if mode := strings.ToLower(c.Mode); mode != "code" && mode != "plan" {
		return fmt.Errorf("mode must be 'code' or 'plan' (got %q)", c.Mode)
	}
	for _, pattern := range c.ToolConfig.Bash.AutoAllow {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid auto_allow pattern %q: %w", pattern, err)
		}
	}
	for name, recipe := range c.Recipes {
		if strings.TrimSpace(recipe.Prompt) == "" && strings.TrimSpace(recipe.PromptFile) == "" {
			return fmt.Errorf("recipe %q has neither prompt nor prompt_file", name)
		}
		if recipe.ErrorIf != "" {
			if _, err := regexp.Compile(recipe.ErrorIf); err != nil {
				return fmt.Errorf("recipe %q has invalid error_if pattern: %w", name, err)
			}
		}
	}
	return nil
}

// RequestTimeout turns the integer value into a duration for HTTP clients.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ShellTimeout exposes the configured duration for sandboxed shell commands.
func (c Config) ShellTimeout() time.Duration {
	return time.Duration(c.ShellTimeoutSeconds) * time.Second
}

// OverrideWorkspaceRoot swaps the workspace root at runtime.
func (c *Config) OverrideWorkspaceRoot(root string) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return
	}
	c.WorkspaceRoot = trimmed
}

func GetConfigDir() string {
	if configDir := os.Getenv("PICO_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pico"
	}
	return filepath.Join(home, ".pico")
}

// ModelFor returns the configured model for the given provider key, falling
// back to provider-appropriate defaults.
func (c Config) ModelFor(provider string) string {
	provider = strings.ToLower(provider)

	if len(c.ProviderModels) > 0 {
		if model := strings.TrimSpace(c.ProviderModels[provider]); model != "" {
			return model
		}
	}
	if model := strings.TrimSpace(c.Model); model != "" {
		return model
	}

	switch provider {
	case "mock":
		return DefaultMockModel
	default:
		return DefaultOpenRouterModel
	}
}

// Save writes the config to the user's config file.
func Save(c Config) error {
	configPath := os.Getenv("PICO_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
