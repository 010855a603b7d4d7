package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 25, cfg.Agent.MaxRounds)
	assert.Equal(t, 20, cfg.Agent.MaxHistoryLen)
	assert.Equal(t, 2*time.Minute, cfg.Agent.ScriptTimeout)
	assert.Equal(t, "pc", cfg.Agent.Executor)
	assert.True(t, cfg.Orchestration.Review)
	assert.Equal(t, "abort", cfg.Orchestration.ConfirmPolicy)
	assert.Equal(t, "scheduler", cfg.Orchestration.DispatchMode)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	p, err := cfg.Provider(cfg.Roles.Manager)
	require.NoError(t, err)
	assert.Equal(t, ProviderDeepSeek, p.Type)
	assert.Equal(t, "https://api.deepseek.com", p.BaseURL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log:
  level: debug
providers:
  claude:
    type: anthropic
    model: claude-sonnet-4-0
roles:
  manager: claude
agent:
  max_rounds: 5
  executor: k8s
  allowed_commands: ["^kubectl ", "^helm "]
  script_timeout: 30s
orchestration:
  review: false
  dispatch_mode: direct
store:
  driver: sqlite
  dsn: sessions.db
mcp:
  servers:
    - name: fs
      command: mcp-fs
      args: ["--root", "/tmp"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Agent.MaxRounds)
	assert.Equal(t, "k8s", cfg.Agent.Executor)
	assert.Equal(t, []string{"^kubectl ", "^helm "}, cfg.Agent.AllowedCommands)
	assert.Equal(t, 30*time.Second, cfg.Agent.ScriptTimeout)
	assert.False(t, cfg.Orchestration.Review)
	assert.Equal(t, "direct", cfg.Orchestration.DispatchMode)
	assert.Equal(t, "sqlite", cfg.Store.Driver)

	p, err := cfg.Provider(cfg.Roles.Manager)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, p.Type)

	// defaults survive alongside file values
	_, err = cfg.Provider(ProviderOpenAI)
	assert.NoError(t, err)

	require.Len(t, cfg.MCP.Servers, 1)
	assert.Equal(t, "fs", cfg.MCP.Servers[0].Name)
	assert.Equal(t, []string{"--root", "/tmp"}, cfg.MCP.Servers[0].Args)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("AIASSISTANT_AGENT__MAX_ROUNDS", "7")
	t.Setenv("AIASSISTANT_PROVIDERS__OPENAI__API_KEY", "sk-test")
	t.Setenv("AIASSISTANT_ORCHESTRATION__CONFIRM_POLICY", "surface")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Agent.MaxRounds)
	assert.Equal(t, "sk-test", cfg.Providers[ProviderOpenAI].APIKey)
	assert.Equal(t, "surface", cfg.Orchestration.ConfirmPolicy)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "agent.max_history_len", envKey("AIASSISTANT_AGENT__MAX_HISTORY_LEN"))
	assert.Equal(t, "server.addr", envKey("AIASSISTANT_SERVER__ADDR"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "unknown role provider", mutate: func(c *Config) { c.Roles.Worker = "nope" }, errMsg: "role worker"},
		{name: "unknown provider type", mutate: func(c *Config) { c.Providers["x"] = ProviderConfig{Type: "bard"} }, errMsg: "unknown type"},
		{name: "executor", mutate: func(c *Config) { c.Agent.Executor = "mainframe" }, errMsg: "agent.executor"},
		{name: "confirm policy", mutate: func(c *Config) { c.Orchestration.ConfirmPolicy = "ignore" }, errMsg: "confirm_policy"},
		{name: "dispatch mode", mutate: func(c *Config) { c.Orchestration.DispatchMode = "magic" }, errMsg: "dispatch_mode"},
		{name: "sqlite without dsn", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, errMsg: "store.dsn"},
		{name: "store driver", mutate: func(c *Config) { c.Store.Driver = "redis" }, errMsg: "store.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
