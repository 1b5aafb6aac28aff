// Package config handles application configuration for the Figaro assistant.
// Configuration is loaded from ~/.figaro/config.yaml and can be overridden by
// FIGARO_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Tools     ToolsConfig     `mapstructure:"tools" yaml:"tools"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// LLMConfig configures the model provider endpoint.
type LLMConfig struct {
	// BaseURL is an OpenAI-compatible API base (e.g. http://127.0.0.1:11434/v1).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// APIKey for authentication. Empty is allowed for local endpoints.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// Model is the default chat model.
	Model string `mapstructure:"model" yaml:"model"`

	// PlannerModel overrides Model for the planning stage. Empty = same model.
	PlannerModel string `mapstructure:"planner_model" yaml:"planner_model"`

	// MaxTokens limits response length per call.
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`

	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// Timeout bounds a single model call end to end.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AgentConfig controls the tool-calling loop.
type AgentConfig struct {
	// MaxIterations caps model invocations per step executor run.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`

	// HistoryWindow is how many recent messages are sent to the model.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
}

// SchedulerConfig controls the background task scheduler.
type SchedulerConfig struct {
	// Enabled starts the tick loop in daemon mode.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// TickInterval is the polling period for due tasks.
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

// ToolsConfig configures the built-in capability executors.
type ToolsConfig struct {
	Search SearchConfig `mapstructure:"search" yaml:"search"`
	Browse BrowseConfig `mapstructure:"browse" yaml:"browse"`
	Memory MemoryConfig `mapstructure:"memory" yaml:"memory"`
}

// SearchConfig configures the web_search capability.
type SearchConfig struct {
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`
}

// BrowseConfig configures the browse capability.
type BrowseConfig struct {
	// MaxChars truncates extracted page text fed back to the model.
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars"`
}

// MemoryConfig configures the persistent memory file.
type MemoryConfig struct {
	// Path to the memory markdown file. Empty = ~/.figaro/memory.md.
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// File enables writing a session log under the data directory.
	File bool `mapstructure:"file" yaml:"file"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     "http://127.0.0.1:11434/v1",
			Model:       "qwen3:8b",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		},
		Agent: AgentConfig{
			MaxIterations: 15,
			HistoryWindow: 50,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TickInterval: 15 * time.Second,
		},
		Tools: ToolsConfig{
			Search: SearchConfig{MaxResults: 5},
			Browse: BrowseConfig{MaxChars: 8000},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// DataDir returns the Figaro data directory (~/.figaro), creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".figaro")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// Load reads configuration from the given file path, falling back to
// ~/.figaro/config.yaml. Missing files are not an error: defaults apply and
// environment variables (FIGARO_LLM_BASE_URL etc.) still override.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", defaults.LLM.Model)
	v.SetDefault("llm.planner_model", "")
	v.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)
	v.SetDefault("llm.temperature", defaults.LLM.Temperature)
	v.SetDefault("llm.timeout", defaults.LLM.Timeout)
	v.SetDefault("agent.max_iterations", defaults.Agent.MaxIterations)
	v.SetDefault("agent.history_window", defaults.Agent.HistoryWindow)
	v.SetDefault("scheduler.enabled", defaults.Scheduler.Enabled)
	v.SetDefault("scheduler.tick_interval", defaults.Scheduler.TickInterval)
	v.SetDefault("tools.search.max_results", defaults.Tools.Search.MaxResults)
	v.SetDefault("tools.browse.max_chars", defaults.Tools.Browse.MaxChars)
	v.SetDefault("tools.memory.path", "")
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)

	v.SetEnvPrefix("FIGARO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := DataDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(filepath.Join(dir, "config.yaml"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(underlying(err)) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// underlying unwraps viper's path errors down to the os error.
func underlying(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		inner := u.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.HistoryWindow < 1 {
		return fmt.Errorf("agent.history_window must be at least 1, got %d", c.Agent.HistoryWindow)
	}
	if c.Scheduler.TickInterval < time.Second {
		return fmt.Errorf("scheduler.tick_interval must be at least 1s, got %s", c.Scheduler.TickInterval)
	}
	return nil
}

// MemoryPath resolves the memory file location.
func (c *Config) MemoryPath() (string, error) {
	if c.Tools.Memory.Path != "" {
		return c.Tools.Memory.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "memory.md"), nil
}

// WriteDefault writes a commented default config file to path if none exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	header := "# Figaro configuration.\n# Values can be overridden with FIGARO_* environment variables,\n# e.g. FIGARO_LLM_API_KEY.\n\n"
	if err := os.WriteFile(path, append([]byte(header), out...), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
