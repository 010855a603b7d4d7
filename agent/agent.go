package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/internal/util"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/memory"
	"github.com/jcqin2022/AIAssistant/model"
	"github.com/jcqin2022/AIAssistant/telemetry"
	"github.com/jcqin2022/AIAssistant/tool"
)

const (
	// DefaultTemplate renders the user turn from the agent's auxiliary
	// context and the incoming message.
	DefaultTemplate = "context: {{.Context}}\nquestion: {{.Question}}"

	// DefaultMaxRounds bounds the capability rounds of one Respond call.
	DefaultMaxRounds = 25
)

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	Instruction        Instruction
	Context            string
	Template           string
	MaxHistoryMessages int
	// MaxRounds limits capability rounds per Respond; 0 or less disables the guard.
	MaxRounds int
	// ToolTimeout bounds a single capability invocation; 0 means no timeout.
	ToolTimeout time.Duration
	Logger      logging.Logger
	Metrics     *telemetry.Metrics
}

// Agent binds a model backend, a capability registry and a bounded history,
// and runs the tool-call loop for each user message.
//
// One Agent processes its rounds sequentially; concurrent Respond calls on
// the same Agent interleave history updates and should be avoided. Workers
// are created per task for that reason.
type Agent struct {
	name        string
	backend     model.Backend
	registry    *tool.Registry
	history     *memory.History
	instruction Instruction
	context     string
	template    string
	maxRounds   int
	toolTimeout time.Duration
	logger      logging.Logger
	metrics     *telemetry.Metrics
}

// New creates an agent. A nil registry is replaced by an empty one.
//
// Defaults:
//   - instruction "You are <name>, a helpful AI assistant."
//   - DefaultTemplate for the user turn
//   - memory.DefaultMaxMessages history entries
//   - DefaultMaxRounds capability rounds
func New(name string, backend model.Backend, registry *tool.Registry, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		Template:           DefaultTemplate,
		MaxHistoryMessages: memory.DefaultMaxMessages,
		MaxRounds:          DefaultMaxRounds,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if registry == nil {
		registry = tool.NewRegistry()
	}
	if opts.Template == "" {
		opts.Template = DefaultTemplate
	}

	return &Agent{
		name:        name,
		backend:     backend,
		registry:    registry,
		history:     memory.NewHistory(opts.MaxHistoryMessages),
		instruction: opts.Instruction,
		context:     opts.Context,
		template:    opts.Template,
		maxRounds:   opts.MaxRounds,
		toolTimeout: opts.ToolTimeout,
		logger:      logging.OrNoOp(opts.Logger),
		metrics:     opts.Metrics,
	}
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// History returns the agent's conversation history.
func (a *Agent) History() *memory.History { return a.history }

// Registry returns the agent's capability registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Backend returns the attached model backend (possibly nil).
func (a *Agent) Backend() model.Backend { return a.backend }

// Respond answers message, invoking capabilities as the model requests.
//
// Loop semantics:
//  1. The outgoing list is system prompt + history + rendered user turn.
//  2. A terminal response is trimmed, appended to history together with
//     message, and returned.
//  3. For a capability call only the first call is honoured. An unknown
//     name or mismatched arguments end the turn with the error text as the
//     answer; history is left untouched in that case.
//  4. Handler errors are returned wrapped.
//  5. More than MaxRounds capability rounds yield *core.LoopExceededError.
func (a *Agent) Respond(ctx context.Context, message string) (answer string, err error) {
	if a.backend == nil {
		return "", core.ErrNoBackend
	}

	ctx, span := telemetry.StartSpan(ctx, "agent.respond", attribute.String(telemetry.AttrAgentName, a.name))
	defer func() { telemetry.EndSpan(span, err) }()

	logger := logging.WithContext(a.logger, ctx)

	messages, err := a.buildMessages(ctx, message)
	if err != nil {
		return "", err
	}

	tools := a.registry.ExportSchemas()
	limiter := core.NewRoundLimiter(a.maxRounds)

	logger.Debug("agent.respond.start", "agent", a.name, "history", a.history.Len(), "tools", len(tools))

	for {
		resp, err := a.generate(ctx, logger, messages, tools)
		if err != nil {
			return "", err
		}

		if !resp.IsCapabilityCall() {
			answer := strings.TrimSpace(resp.Content)
			a.history.Append(core.UserMessage(message), core.AssistantMessage(answer))
			logger.Debug("agent.respond.done", "agent", a.name, "rounds", limiter.Count())
			return answer, nil
		}

		if !limiter.Increment() {
			logger.Warn("agent.respond.loop_exceeded", "agent", a.name, "max_rounds", a.maxRounds)
			return "", &core.LoopExceededError{Agent: a.name, MaxRounds: a.maxRounds}
		}

		call := resp.Calls[0]
		if len(resp.Calls) > 1 {
			logger.Debug("agent.call.extra_ignored", "agent", a.name, "ignored", len(resp.Calls)-1)
		}
		if call.ID == "" {
			call.ID = core.NewID()
		}

		result, terminal, err := a.invoke(ctx, logger, call, limiter.Count())
		if err != nil {
			return "", err
		}
		if terminal {
			return result, nil
		}

		messages = append(messages, core.CallMessage(call), core.ToolResultMessage(call, result))
	}
}

func (a *Agent) buildMessages(ctx context.Context, message string) ([]core.Message, error) {
	instruction, err := a.instruction.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent %s: resolve instruction: %w", a.name, err)
	}

	user, err := util.RenderTemplate(a.template, map[string]any{
		"Context":  a.context,
		"Question": message,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: render user message: %w", a.name, err)
	}

	history := a.history.Messages()
	messages := make([]core.Message, 0, len(history)+2)
	messages = append(messages, core.SystemMessage(instruction))
	messages = append(messages, history...)
	messages = append(messages, core.UserMessage(user))
	return messages, nil
}

func (a *Agent) generate(ctx context.Context, logger logging.Logger, messages []core.Message, tools []model.ToolDefinition) (*model.Response, error) {
	start := time.Now()
	resp, err := a.backend.Generate(ctx, model.Request{Messages: messages, Tools: tools})
	dur := time.Since(start)
	a.metrics.ObserveModelCall(a.name, dur, err)

	var tokens int64
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LLMCall(logger, a.backend.Info().Name, tokens, dur, err)

	if err != nil {
		return nil, fmt.Errorf("agent %s: model call failed: %w", a.name, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("agent %s: model returned no response", a.name)
	}
	return resp, nil
}

// invoke runs one capability call. terminal reports that result is a
// textual error that ends the turn.
func (a *Agent) invoke(ctx context.Context, logger logging.Logger, call core.CapabilityCall, round int) (result string, terminal bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "agent.capability",
		attribute.String(telemetry.AttrAgentName, a.name),
		attribute.String(telemetry.AttrCapabilityName, call.Name),
		attribute.Int(telemetry.AttrAgentRound, round),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	t, ok := a.registry.Lookup(call.Name)
	if !ok {
		a.metrics.CapabilityCalled(call.Name, "not_found")
		nf := &core.CapabilityNotFoundError{Name: call.Name}
		logger.Warn("agent.call.not_found", "agent", a.name, "capability", call.Name)
		return nf.Error(), true, nil
	}

	args, verr := tool.ParseArguments(call.Name, call.Arguments)
	if verr == nil {
		verr = tool.ValidateArguments(t, args)
	}
	if verr != nil {
		a.metrics.CapabilityCalled(call.Name, "invalid_arguments")
		logger.Warn("agent.call.invalid_arguments", "agent", a.name, "capability", call.Name, "error", verr.Error())
		return verr.Error(), true, nil
	}

	callCtx := ctx
	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	select {
	case res := <-a.registry.DispatchAsync(callCtx, call.Name, args):
		if res.Err != nil {
			a.metrics.CapabilityCalled(call.Name, "error")
			return "", false, fmt.Errorf("agent %s: capability %s: %w", a.name, call.Name, res.Err)
		}
		a.metrics.CapabilityCalled(call.Name, "ok")
		return res.Output, false, nil
	case <-callCtx.Done():
		a.metrics.CapabilityCalled(call.Name, "error")
		return "", false, fmt.Errorf("agent %s: capability %s: %w", a.name, call.Name, callCtx.Err())
	}
}
