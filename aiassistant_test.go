package aiassistant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcqin2022/AIAssistant/config"
	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/engine"
	"github.com/jcqin2022/AIAssistant/executor"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/model"
)

type fakeRunner struct{}

func (fakeRunner) ExecuteScript(_ context.Context, script string) (string, error) {
	return "ran: " + script, nil
}
func (fakeRunner) System() executor.System { return executor.Linux }

type fakeMCP struct{}

func (fakeMCP) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: []mcp.Tool{{
		Name:           "weather",
		Description:    "Current weather of a city",
		RawInputSchema: []byte(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
	}}}, nil
}

func (fakeMCP) CallTool(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("sunny")}}, nil
}

func managerModel() *model.FuncModel {
	return model.NewFuncModel("manager", func(_ context.Context, req model.Request) (*model.Response, error) {
		msg := model.LastUserMessage(req)
		switch {
		case strings.Contains(msg, "## Intent analysis"):
			return model.TextResponse("Intent: arithmetic\n[TASK_LIST]\n[TASK] What is 2+2"), nil
		case strings.Contains(msg, "## Final answer"):
			if strings.Contains(msg, "4") {
				return model.TextResponse("2+2 is 4."), nil
			}
			return model.TextResponse("no result"), nil
		}
		return nil, errors.New("unexpected manager prompt")
	})
}

func workerModel() *model.FuncModel {
	return model.NewFuncModel("worker", func(context.Context, model.Request) (*model.Response, error) {
		return model.TextResponse("4"), nil
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Orchestration.DispatchMode = "direct"
	cfg.Orchestration.Review = false
	return cfg
}

func newTestAssistant(t *testing.T, cfg *config.Config, backends map[engine.Role]model.Backend) *Assistant {
	t.Helper()
	a, err := New(context.Background(), cfg, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.Backends = backends
		o.Runner = fakeRunner{}
		o.MCPClients = map[string]executor.MCPClient{"weather": fakeMCP{}}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAssistant_Ask(t *testing.T) {
	single := model.NewScriptedModel("single",
		model.CallResponse(executor.ExecuteScriptName, `{"script":"uname -a"}`),
		model.TextResponse("You are running Linux."),
	)
	a := newTestAssistant(t, testConfig(t), map[engine.Role]model.Backend{
		engine.RoleManager:   managerModel(),
		engine.RoleScheduler: workerModel(),
		engine.RoleWorker:    workerModel(),
		engine.RoleAssistant: single,
	})

	answer, err := a.Ask(context.Background(), "Which OS is this?")
	require.NoError(t, err)
	assert.Equal(t, "You are running Linux.", answer)

	reqs := single.Requests()
	require.Len(t, reqs, 2)

	var names []string
	for _, def := range reqs[0].Tools {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{executor.ExecuteScriptName, executor.GetSystemName, "weather"}, names)

	res, ok := model.LastToolResult(reqs[1])
	require.True(t, ok)
	assert.Equal(t, "ran: uname -a", res)
}

func TestAssistant_AskWithOrchestration(t *testing.T) {
	a := newTestAssistant(t, testConfig(t), map[engine.Role]model.Backend{
		engine.RoleManager:   managerModel(),
		engine.RoleScheduler: workerModel(),
		engine.RoleWorker:    workerModel(),
		engine.RoleAssistant: workerModel(),
	})

	answer, err := a.AskWithOrchestration(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "2+2 is 4.", answer)

	s, err := a.RunOrchestration(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, core.StageDone, s.Stage)
	assert.Equal(t, "2+2 is 4.", s.Answer)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, "4", s.Tasks[0].Result)

	stored, err := a.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Answer, stored.Answer)

	_, err = a.Session("missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	count, err := testutil.GatherAndCount(a.Gatherer(), "aiassistant_stage_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestAssistant_SQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "sessions.db")

	a := newTestAssistant(t, cfg, map[engine.Role]model.Backend{
		engine.RoleManager:   managerModel(),
		engine.RoleScheduler: workerModel(),
		engine.RoleWorker:    workerModel(),
		engine.RoleAssistant: workerModel(),
	})

	s, err := a.RunOrchestration(context.Background(), "What is 2+2?")
	require.NoError(t, err)

	stored, err := a.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StageDone, stored.Stage)
	require.NoError(t, a.Close())
}

func TestNew_InvalidAllowList(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.AllowedCommands = []string{"("}

	_, err := New(context.Background(), cfg, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.Backends = map[engine.Role]model.Backend{
			engine.RoleManager:   workerModel(),
			engine.RoleScheduler: workerModel(),
			engine.RoleWorker:    workerModel(),
			engine.RoleAssistant: workerModel(),
		}
	})
	assert.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name     string
		provider config.ProviderConfig
		want     string
		wantErr  bool
	}{
		{name: "openai", provider: config.ProviderConfig{Type: config.ProviderOpenAI, Model: "gpt-4o", APIKey: "k"}, want: "openai"},
		{name: "deepseek", provider: config.ProviderConfig{Type: config.ProviderDeepSeek, Model: "deepseek-chat", APIKey: "k"}, want: "deepseek"},
		{name: "azure", provider: config.ProviderConfig{Type: config.ProviderAzure, Model: "gpt4", Endpoint: "https://x.openai.azure.com", APIKey: "k"}, want: "azure"},
		{name: "azure without endpoint", provider: config.ProviderConfig{Type: config.ProviderAzure}, wantErr: true},
		{name: "anthropic", provider: config.ProviderConfig{Type: config.ProviderAnthropic, Model: "claude-sonnet-4-0", APIKey: "k"}, want: "anthropic"},
		{name: "unknown", provider: config.ProviderConfig{Type: "bard"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.provider)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			info := b.Info()
			assert.Equal(t, tt.want, info.Provider)
			assert.Equal(t, tt.provider.Model, info.Name)
		})
	}
}

func TestRoundLimit(t *testing.T) {
	assert.Equal(t, -1, roundLimit(0))
	assert.Equal(t, 5, roundLimit(5))
}
