package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jcqin2022/AIAssistant/agent"
	"github.com/jcqin2022/AIAssistant/executor"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/model"
	"github.com/jcqin2022/AIAssistant/telemetry"
	"github.com/jcqin2022/AIAssistant/tool"
)

// Factory mints the agents of the pipeline. Every call returns a fresh agent
// with its own history.
type Factory interface {
	NewManager(ctx context.Context) (agent.Responder, error)
	NewScheduler(ctx context.Context) (agent.Responder, error)
	NewWorker(ctx context.Context) (agent.Responder, error)
}

// Role names an agent role of the pipeline.
type Role string

// Roles.
const (
	RoleManager   Role = "manager"
	RoleScheduler Role = "scheduler"
	RoleWorker    Role = "worker"
	// RoleAssistant is the standalone single-agent path.
	RoleAssistant Role = "assistant"
)

// WorkerKind selects the capability set of workers and single assistants.
type WorkerKind string

// Worker kinds.
const (
	KindPC      WorkerKind = "pc"
	KindCluster WorkerKind = "cluster"
)

// ParseWorkerKind maps a configuration value to a WorkerKind. "k8s" is
// accepted for KindCluster.
func ParseWorkerKind(s string) (WorkerKind, error) {
	switch s {
	case "", "pc":
		return KindPC, nil
	case "cluster", "k8s":
		return KindCluster, nil
	default:
		return "", fmt.Errorf("unknown executor kind %q", s)
	}
}

// ErrNoRunner is returned when a worker is requested without a script runner.
var ErrNoRunner = errors.New("no script runner configured")

// CreatorConfig configures the default Factory.
type CreatorConfig struct {
	// Backends per role; Default is used for roles without an entry.
	Backends map[Role]model.Backend
	Default  model.Backend

	// Runner executes worker scripts; ClusterRunner is used for KindCluster
	// and falls back to Runner.
	Runner        executor.ScriptRunner
	ClusterRunner executor.ScriptRunner
	WorkerKind    WorkerKind

	// ExtraTools are registered on every worker, e.g. MCP server tools.
	ExtraTools []tool.Tool

	Prompts    *Prompts
	MaxHistory int
	// MaxRounds overrides agent.DefaultMaxRounds when non-zero. A negative
	// value disables the round guard.
	MaxRounds   int
	ToolTimeout time.Duration
	Logger      logging.Logger
	Metrics     *telemetry.Metrics
}

// Creator is the default Factory.
type Creator struct {
	cfg CreatorConfig
}

var _ Factory = (*Creator)(nil)

// NewCreator creates a factory.
func NewCreator(cfg CreatorConfig) *Creator {
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.WorkerKind == "" {
		cfg.WorkerKind = KindPC
	}
	cfg.Logger = logging.OrNoOp(cfg.Logger)
	return &Creator{cfg: cfg}
}

// NewManager returns a capability-free manager agent.
func (c *Creator) NewManager(context.Context) (agent.Responder, error) {
	return c.newAgent(string(RoleManager), RoleManager, PromptManager, tool.NewRegistry()), nil
}

// NewScheduler returns a scheduler whose capabilities fan tasks out to
// workers minted by c.
func (c *Creator) NewScheduler(context.Context) (agent.Responder, error) {
	reg := executor.NewSchedulerRegistry(c.NewWorker, func(o *agent.ParallelOptions) {
		o.Logger = c.cfg.Logger
		o.Metrics = c.cfg.Metrics
	})
	return c.newAgent(string(RoleScheduler), RoleScheduler, PromptScheduler, reg), nil
}

// NewWorker returns a worker of the configured kind.
func (c *Creator) NewWorker(context.Context) (agent.Responder, error) {
	a, err := c.NewAssistant(c.cfg.WorkerKind, RoleWorker)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewAssistant returns a standalone agent with the capabilities of kind and
// the backend of role.
func (c *Creator) NewAssistant(kind WorkerKind, role Role) (*agent.Agent, error) {
	reg, err := c.hostRegistry(kind)
	if err != nil {
		return nil, err
	}
	for _, t := range c.cfg.ExtraTools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}

	prompt := PromptPC
	if kind == KindCluster {
		prompt = PromptCluster
	}
	return c.newAgent(string(kind), role, prompt, reg), nil
}

func (c *Creator) hostRegistry(kind WorkerKind) (*tool.Registry, error) {
	switch kind {
	case KindPC:
		if c.cfg.Runner == nil {
			return nil, ErrNoRunner
		}
		return executor.NewPCRegistry(c.cfg.Runner), nil
	case KindCluster:
		runner := c.cfg.ClusterRunner
		if runner == nil {
			runner = c.cfg.Runner
		}
		if runner == nil {
			return nil, ErrNoRunner
		}
		return executor.NewClusterRegistry(runner), nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", kind)
	}
}

func (c *Creator) backend(role Role) model.Backend {
	if b, ok := c.cfg.Backends[role]; ok && b != nil {
		return b
	}
	return c.cfg.Default
}

func (c *Creator) newAgent(name string, role Role, prompt string, reg *tool.Registry) *agent.Agent {
	reg.SetLogger(c.cfg.Logger)
	return agent.New(name, c.backend(role), reg, func(o *agent.Options) {
		if text := c.cfg.Prompts.Instruction(prompt); text != "" {
			o.Instruction = agent.NewInstructionFromText(text)
		}
		o.Context = c.cfg.Prompts.Context(prompt)
		if c.cfg.MaxHistory != 0 {
			o.MaxHistoryMessages = c.cfg.MaxHistory
		}
		if c.cfg.MaxRounds != 0 {
			o.MaxRounds = c.cfg.MaxRounds
		}
		o.ToolTimeout = c.cfg.ToolTimeout
		o.Logger = c.cfg.Logger
		o.Metrics = c.cfg.Metrics
	})
}
