// Package aiassistant wires configuration, model backends, executors, session
// storage and observability into a ready-to-use assistant. Most applications
// interact with this package by:
//  1. Loading a config.Config (config.Load)
//  2. Creating an Assistant via New()
//  3. Asking questions with Ask (single agent) or AskWithOrchestration
//
// The façade delegates orchestration to engine.Engine; the HTTP server and
// the CLI are thin layers over it.
package aiassistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jcqin2022/AIAssistant/agent"
	"github.com/jcqin2022/AIAssistant/config"
	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/engine"
	"github.com/jcqin2022/AIAssistant/executor"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/model"
	"github.com/jcqin2022/AIAssistant/model/anthropic"
	"github.com/jcqin2022/AIAssistant/model/openai"
	"github.com/jcqin2022/AIAssistant/session"
	"github.com/jcqin2022/AIAssistant/session/sqlite"
	"github.com/jcqin2022/AIAssistant/telemetry"
	"github.com/jcqin2022/AIAssistant/tool"
)

// Version of the assistant, reported by /GetVersion and the CLI.
const Version = "1.0.0"

const defaultAzureAPIVersion = "2024-06-01"

// Options overrides the components built from the configuration.
type Options struct {
	// Logger replaces the logger built from cfg.Log.
	Logger logging.Logger
	// Backends replace the configured backend of a role.
	Backends map[engine.Role]model.Backend
	// Runner replaces the local script runner of every worker kind.
	Runner executor.ScriptRunner
	// Store replaces the configured session store.
	Store core.SessionStore
	// MCPClients are used instead of launching cfg.MCP.Servers.
	MCPClients map[string]executor.MCPClient
	// Registry collects the Prometheus metrics; a fresh registry with Go
	// and process collectors is created when nil.
	Registry  *prometheus.Registry
	Callbacks []engine.Callback
}

// Assistant is the high-level façade.
type Assistant struct {
	cfg      *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	store    core.SessionStore
	engine   *engine.Engine
	creator  *engine.Creator

	mu     sync.Mutex
	single *agent.Agent

	closers []io.Closer
}

// New builds an assistant from cfg. MCP servers are started with ctx.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (_ *Assistant, err error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Assistant{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.logger = opts.Logger
	if a.logger == nil {
		if a.logger, err = a.newLogger(); err != nil {
			return nil, err
		}
	}

	a.registry = opts.Registry
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics, err := telemetry.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}

	a.store = opts.Store
	if a.store == nil {
		if a.store, err = a.newStore(); err != nil {
			return nil, err
		}
	}

	backends, err := a.backends(opts.Backends)
	if err != nil {
		return nil, err
	}

	runner, clusterRunner, err := a.runners(opts.Runner)
	if err != nil {
		return nil, err
	}

	kind, err := engine.ParseWorkerKind(cfg.Agent.Executor)
	if err != nil {
		return nil, err
	}

	prompts := engine.DefaultPrompts()
	if cfg.Prompts.Dir != "" {
		if prompts, err = engine.LoadPrompts(cfg.Prompts.Dir); err != nil {
			return nil, err
		}
	}

	extra, err := a.mcpTools(ctx, opts.MCPClients)
	if err != nil {
		return nil, err
	}

	a.creator = engine.NewCreator(engine.CreatorConfig{
		Backends:      backends,
		Runner:        runner,
		ClusterRunner: clusterRunner,
		WorkerKind:    kind,
		ExtraTools:    extra,
		Prompts:       prompts,
		MaxHistory:    cfg.Agent.MaxHistoryLen,
		MaxRounds:     roundLimit(cfg.Agent.MaxRounds),
		ToolTimeout:   cfg.Agent.ToolTimeout,
		Logger:        a.logger,
		Metrics:       metrics,
	})

	confirm, err := engine.ParseConfirmPolicy(cfg.Orchestration.ConfirmPolicy)
	if err != nil {
		return nil, err
	}
	dispatch, err := engine.ParseDispatchMode(cfg.Orchestration.DispatchMode)
	if err != nil {
		return nil, err
	}

	a.engine = engine.New(a.creator, func(o *engine.Options) {
		o.EnableReview = cfg.Orchestration.Review
		o.ConfirmPolicy = confirm
		o.DispatchMode = dispatch
		o.Prompts = prompts
		if cfg.Agent.MaxHistoryLen > 0 {
			o.MaxHistory = cfg.Agent.MaxHistoryLen
		}
		o.Store = a.store
		o.Callbacks = opts.Callbacks
		o.Logger = a.logger
		o.Metrics = metrics
	})

	a.logger.Info("assistant.ready", "version", Version, "executor", kind, "mcp_tools", len(extra))
	return a, nil
}

// Ask answers question with the standalone single agent. Its history is
// kept across calls.
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.single == nil {
		kind, err := engine.ParseWorkerKind(a.cfg.Agent.Executor)
		if err != nil {
			return "", err
		}
		single, err := a.creator.NewAssistant(kind, engine.RoleAssistant)
		if err != nil {
			return "", err
		}
		a.single = single
	}
	return a.single.Respond(ctx, question)
}

// AskWithOrchestration runs question through the multi-agent pipeline and
// returns the final answer text.
func (a *Assistant) AskWithOrchestration(ctx context.Context, question string) (string, error) {
	return a.engine.Ask(ctx, question)
}

// RunOrchestration is AskWithOrchestration returning the whole session.
func (a *Assistant) RunOrchestration(ctx context.Context, question string) (*core.Session, error) {
	return a.engine.Run(ctx, question)
}

// Session returns an archived session.
func (a *Assistant) Session(id string) (*core.Session, error) {
	return a.store.Get(id)
}

// Engine returns the orchestration engine.
func (a *Assistant) Engine() *engine.Engine { return a.engine }

// Gatherer exposes the metrics registry.
func (a *Assistant) Gatherer() prometheus.Gatherer { return a.registry }

// Logger returns the assistant logger.
func (a *Assistant) Logger() logging.Logger { return a.logger }

// Close releases MCP sessions, the session store and the log file.
func (a *Assistant) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewBackend creates the model backend described by p.
func NewBackend(p config.ProviderConfig) (model.Backend, error) {
	switch p.Type {
	case config.ProviderOpenAI, config.ProviderDeepSeek:
		return openai.NewModel(func(o *openai.Options) {
			applyOpenAI(o, p)
			o.Provider = p.Type
			if p.Type == config.ProviderDeepSeek {
				o.UseMaxTokens = true
			}
		}), nil
	case config.ProviderAzure:
		if p.Endpoint == "" {
			return nil, errors.New("azure provider requires an endpoint")
		}
		return openai.NewModel(func(o *openai.Options) {
			applyOpenAI(o, p)
			o.AzureEndpoint = p.Endpoint
			o.APIVersion = p.APIVersion
			if o.APIVersion == "" {
				o.APIVersion = defaultAzureAPIVersion
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if p.Model != "" {
				o.Model = anthropicsdk.Model(p.Model)
			}
			if p.Temperature != 0 {
				o.Temperature = p.Temperature
			}
			if p.MaxTokens > 0 {
				o.MaxTokens = p.MaxTokens
			}
			o.APIKey = p.APIKey
			o.BaseURL = p.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", p.Type)
	}
}

func applyOpenAI(o *openai.Options, p config.ProviderConfig) {
	if p.Model != "" {
		o.Model = p.Model
	}
	if p.Temperature != 0 {
		o.Temperature = p.Temperature
	}
	if p.MaxTokens > 0 {
		o.MaxCompletionTokens = p.MaxTokens
	}
	o.APIKey = p.APIKey
	o.BaseURL = p.BaseURL
}

func (a *Assistant) newLogger() (logging.Logger, error) {
	lc := logging.DefaultLoggerConfig()
	lc.Level = logging.ParseLevel(a.cfg.Log.Level)
	lc.Format = a.cfg.Log.Format
	lc.Component = "aiassistant"
	if a.cfg.Log.File != "" {
		f, err := os.OpenFile(a.cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		lc.Output = io.MultiWriter(os.Stderr, f)
	}
	return logging.NewLogger(lc), nil
}

func (a *Assistant) newStore() (core.SessionStore, error) {
	switch a.cfg.Store.Driver {
	case "", "memory":
		return session.NewInMemoryStore(a.cfg.Store.MaxSessions), nil
	case "sqlite":
		st, err := sqlite.Open(a.cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

func (a *Assistant) backends(overrides map[engine.Role]model.Backend) (map[engine.Role]model.Backend, error) {
	roles := map[engine.Role]string{
		engine.RoleManager:   a.cfg.Roles.Manager,
		engine.RoleScheduler: a.cfg.Roles.Scheduler,
		engine.RoleWorker:    a.cfg.Roles.Worker,
		engine.RoleAssistant: a.cfg.Roles.Assistant,
	}

	byProvider := make(map[string]model.Backend)
	backends := make(map[engine.Role]model.Backend, len(roles))
	for role, name := range roles {
		if b, ok := overrides[role]; ok {
			backends[role] = b
			continue
		}
		if b, ok := byProvider[name]; ok {
			backends[role] = b
			continue
		}
		p, err := a.cfg.Provider(name)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		b, err := NewBackend(p)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		byProvider[name] = b
		backends[role] = b
	}
	return backends, nil
}

func (a *Assistant) runners(override executor.ScriptRunner) (executor.ScriptRunner, executor.ScriptRunner, error) {
	if override != nil {
		return override, override, nil
	}

	newRunner := func(shell executor.Shell) (executor.ScriptRunner, error) {
		return executor.NewLocalRunner(func(o *executor.RunnerOptions) {
			o.Shell = shell
			o.AllowedCommands = a.cfg.Agent.AllowedCommands
			o.Timeout = a.cfg.Agent.ScriptTimeout
			o.Logger = a.logger
		})
	}

	pc, err := newRunner(executor.ShellDefault)
	if err != nil {
		return nil, nil, err
	}
	cluster, err := newRunner(executor.ShellCmd)
	if err != nil {
		return nil, nil, err
	}
	return pc, cluster, nil
}

func (a *Assistant) mcpTools(ctx context.Context, clients map[string]executor.MCPClient) ([]tool.Tool, error) {
	var sessions []*executor.MCPSession
	if clients != nil {
		for name, c := range clients {
			sessions = append(sessions, executor.NewMCPSession(name, c))
		}
	} else {
		for _, srv := range a.cfg.MCP.Servers {
			s, err := executor.ConnectMCP(ctx, srv, Version)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, s)
			sessions = append(sessions, s)
		}
	}

	var tools []tool.Tool
	for _, s := range sessions {
		ts, err := s.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", s.Name(), err)
		}
		a.logger.Info("assistant.mcp.tools", "server", s.Name(), "count", len(ts))
		tools = append(tools, ts...)
	}
	return tools, nil
}

// roundLimit maps agent.max_rounds onto CreatorConfig.MaxRounds, where zero
// means the agent default. A configured 0 turns the guard off.
func roundLimit(configured int) int {
	if configured == 0 {
		return -1
	}
	return configured
}
