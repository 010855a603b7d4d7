// Package config loads the assistant configuration: built-in defaults, then
// an optional YAML file, then AIASSISTANT_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jcqin2022/AIAssistant/executor"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore: AIASSISTANT_AGENT__MAX_ROUNDS -> agent.max_rounds.
const EnvPrefix = "AIASSISTANT_"

// Provider types.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
)

// Config is the root configuration.
type Config struct {
	Log           LogConfig                 `koanf:"log"`
	Providers     map[string]ProviderConfig `koanf:"providers"`
	Roles         RolesConfig               `koanf:"roles"`
	Agent         AgentConfig               `koanf:"agent"`
	Orchestration OrchestrationConfig       `koanf:"orchestration"`
	Prompts       PromptsConfig             `koanf:"prompts"`
	Server        ServerConfig              `koanf:"server"`
	Store         StoreConfig               `koanf:"store"`
	MCP           MCPConfig                 `koanf:"mcp"`
}

// LogConfig configures logging. File, when set, receives the log output in
// addition to stderr.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
	File   string `koanf:"file"`
}

// ProviderConfig describes one model backend.
type ProviderConfig struct {
	Type        string  `koanf:"type"` // openai, azure, deepseek, anthropic
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Endpoint    string  `koanf:"endpoint"` // azure
	APIVersion  string  `koanf:"api_version"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int64   `koanf:"max_tokens"`
}

// RolesConfig names the provider used by each agent role.
type RolesConfig struct {
	Manager   string `koanf:"manager"`
	Scheduler string `koanf:"scheduler"`
	Worker    string `koanf:"worker"`
	Assistant string `koanf:"assistant"`
}

// AgentConfig tunes every agent.
type AgentConfig struct {
	MaxHistoryLen   int           `koanf:"max_history_len"`
	MaxRounds       int           `koanf:"max_rounds"`
	Executor        string        `koanf:"executor"` // pc, cluster
	AllowedCommands []string      `koanf:"allowed_commands"`
	ScriptTimeout   time.Duration `koanf:"script_timeout"`
	ToolTimeout     time.Duration `koanf:"tool_timeout"`
}

// OrchestrationConfig tunes the engine.
type OrchestrationConfig struct {
	Review        bool   `koanf:"review"`
	ConfirmPolicy string `koanf:"confirm_policy"` // abort, surface
	DispatchMode  string `koanf:"dispatch_mode"`  // scheduler, direct
}

// PromptsConfig points at a directory of prompt overrides.
type PromptsConfig struct {
	Dir string `koanf:"dir"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// StoreConfig selects the session archive.
type StoreConfig struct {
	Driver      string `koanf:"driver"` // memory, sqlite
	DSN         string `koanf:"dsn"`
	MaxSessions int    `koanf:"max_sessions"`
}

// MCPConfig lists MCP servers whose tools are given to workers.
type MCPConfig struct {
	Servers []executor.MCPServer `koanf:"servers"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"providers.openai.type":       ProviderOpenAI,
	"providers.openai.model":      "gpt-4o",
	"providers.deepseek.type":     ProviderDeepSeek,
	"providers.deepseek.model":    "deepseek-chat",
	"providers.deepseek.base_url": "https://api.deepseek.com",

	"roles.manager":   ProviderDeepSeek,
	"roles.scheduler": ProviderOpenAI,
	"roles.worker":    ProviderOpenAI,
	"roles.assistant": ProviderOpenAI,

	"agent.max_history_len": 20,
	"agent.max_rounds":      25,
	"agent.executor":        "pc",
	"agent.script_timeout":  "2m",

	"orchestration.review":         true,
	"orchestration.confirm_policy": "abort",
	"orchestration.dispatch_mode":  "scheduler",

	"server.addr": ":8080",

	"store.driver":       "memory",
	"store.max_sessions": 1000,
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Provider returns the provider configured for a role name.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Validate checks cross references and enumerations.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		switch p.Type {
		case ProviderOpenAI, ProviderAzure, ProviderDeepSeek, ProviderAnthropic:
		default:
			return fmt.Errorf("provider %q: unknown type %q", name, p.Type)
		}
	}

	for role, name := range map[string]string{
		"manager":   c.Roles.Manager,
		"scheduler": c.Roles.Scheduler,
		"worker":    c.Roles.Worker,
		"assistant": c.Roles.Assistant,
	} {
		if _, ok := c.Providers[name]; !ok {
			return fmt.Errorf("role %s: unknown provider %q", role, name)
		}
	}

	switch c.Agent.Executor {
	case "pc", "cluster", "k8s":
	default:
		return fmt.Errorf("agent.executor: unknown kind %q", c.Agent.Executor)
	}
	switch c.Orchestration.ConfirmPolicy {
	case "abort", "surface":
	default:
		return fmt.Errorf("orchestration.confirm_policy: unknown policy %q", c.Orchestration.ConfirmPolicy)
	}
	switch c.Orchestration.DispatchMode {
	case "scheduler", "direct":
	default:
		return fmt.Errorf("orchestration.dispatch_mode: unknown mode %q", c.Orchestration.DispatchMode)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	return nil
}
