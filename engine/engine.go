package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jcqin2022/AIAssistant/agent"
	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/executor"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/memory"
	"github.com/jcqin2022/AIAssistant/telemetry"
)

// ConfirmPolicy decides what a run returns when the manager asks for
// confirmation instead of producing tasks.
type ConfirmPolicy int

const (
	// ConfirmAbort ends the run with an empty answer and leaves history
	// untouched.
	ConfirmAbort ConfirmPolicy = iota
	// ConfirmSurface returns the clarifying question as the answer and
	// records the turn in history.
	ConfirmSurface
)

// ParseConfirmPolicy maps "abort" and "surface".
func ParseConfirmPolicy(s string) (ConfirmPolicy, error) {
	switch strings.ToLower(s) {
	case "", "abort":
		return ConfirmAbort, nil
	case "surface":
		return ConfirmSurface, nil
	default:
		return 0, fmt.Errorf("unknown confirm policy %q", s)
	}
}

// DispatchMode selects how a task list is executed.
type DispatchMode int

const (
	// DispatchScheduler hands the task text to a scheduler agent.
	DispatchScheduler DispatchMode = iota
	// DispatchDirect parses the task items and fans them out without a
	// scheduler.
	DispatchDirect
)

// ParseDispatchMode maps "scheduler" and "direct".
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch strings.ToLower(s) {
	case "", "scheduler":
		return DispatchScheduler, nil
	case "direct":
		return DispatchDirect, nil
	default:
		return 0, fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// Options configures an Engine.
type Options struct {
	EnableReview  bool
	ConfirmPolicy ConfirmPolicy
	DispatchMode  DispatchMode
	Classifier    Classifier
	Prompts       *Prompts
	// MaxHistory bounds the engine's own question/answer history.
	MaxHistory int
	Store      core.SessionStore
	Callbacks  []Callback
	Logger     logging.Logger
	Metrics    *telemetry.Metrics
}

// Engine drives a question through ANALYZE, DISPATCH, EXECUTE, REVIEW and
// DELIVER using the agents minted by its Factory.
//
// The manager is created on the first run and kept for the lifetime of the
// engine; schedulers and workers are fresh per run. Runs on one Engine are
// serialized. A failed run leaves the engine usable.
type Engine struct {
	factory   Factory
	opts      Options
	history   *memory.History
	callbacks *CallbackManager
	logger    logging.Logger

	mu      sync.Mutex
	manager agent.Responder
}

// New creates an engine.
//
// Defaults: review enabled, ConfirmAbort, DispatchScheduler, MarkerClassifier,
// embedded prompts and memory.DefaultMaxMessages history entries.
func New(factory Factory, optFns ...func(o *Options)) *Engine {
	opts := Options{
		EnableReview: true,
		Classifier:   MarkerClassifier{},
		MaxHistory:   memory.DefaultMaxMessages,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Classifier == nil {
		opts.Classifier = MarkerClassifier{}
	}
	if opts.Prompts == nil {
		opts.Prompts = DefaultPrompts()
	}

	callbacks := NewCallbackManager()
	callbacks.Register(opts.Callbacks...)

	return &Engine{
		factory:   factory,
		opts:      opts,
		history:   memory.NewHistory(opts.MaxHistory),
		callbacks: callbacks,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// RegisterCallback adds callbacks after construction.
func (e *Engine) RegisterCallback(callbacks ...Callback) { e.callbacks.Register(callbacks...) }

// History returns the engine's question/answer history.
func (e *Engine) History() *memory.History { return e.history }

// Ask runs question and returns only the answer.
func (e *Engine) Ask(ctx context.Context, question string) (string, error) {
	s, err := e.Run(ctx, question)
	if err != nil {
		return "", err
	}
	return s.Answer, nil
}

// Run orchestrates one question. The returned session is a snapshot of the
// finished run. Manager failures return *core.SessionStageError together with
// the failed session.
func (e *Engine) Run(ctx context.Context, question string) (session *core.Session, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := core.NewSession(core.NewID(), question)

	ctx, span := telemetry.StartSpan(ctx, "engine.run", attribute.String(telemetry.AttrSessionID, s.ID))
	defer func() { telemetry.EndSpan(span, err) }()

	logger := e.sessionLogger(ctx, s)
	logger.Info("engine.run.start")

	defer func() {
		e.archive(logger, s)
		session = s.Clone()
		logger.Info("engine.run.done", "stage", session.Stage)
	}()

	e.enter(ctx, s, core.StageAnalyze)
	manager, err := e.managerAgent(ctx)
	if err != nil {
		return nil, e.fail(ctx, s, core.StageAnalyze, err)
	}

	prompt, err := e.opts.Prompts.Render(StageAnalyzePrompt, analyzeData{
		Question:       question,
		MarkerConfirm:  MarkerConfirm,
		MarkerTaskList: MarkerTaskList,
		MarkerTaskItem: MarkerTaskItem,
	})
	if err != nil {
		return nil, e.fail(ctx, s, core.StageAnalyze, err)
	}

	analysis, err := manager.Respond(ctx, prompt)
	if err != nil {
		return nil, e.fail(ctx, s, core.StageAnalyze, err)
	}

	next := e.opts.Classifier.Classify(analysis)
	logger.Debug("engine.analysis.classified", "stage", next)

	switch next {
	case core.StageConfirmNeeded:
		e.confirm(ctx, s, analysis)
		return nil, nil
	case core.StageDispatch:
	default:
		s.Update(func(s *core.Session) { s.Answer = UnparsedAnswer })
		e.enter(ctx, s, core.StageUnparsed)
		return nil, nil
	}

	taskText := TaskText(analysis)
	parsed := ParseTasks(taskText)
	s.Update(func(s *core.Session) { s.TaskText = taskText })
	e.enter(ctx, s, core.StageDispatch)

	if e.opts.DispatchMode == DispatchDirect && len(parsed) == 0 {
		s.Update(func(s *core.Session) { s.Answer = UnparsedAnswer })
		e.enter(ctx, s, core.StageUnparsed)
		return nil, nil
	}

	e.enter(ctx, s, core.StageExecute)
	results := e.execute(ctx, s, taskText, parsed)
	s.Update(func(s *core.Session) { s.Results = results })

	var feedback string
	if e.opts.EnableReview {
		e.enter(ctx, s, core.StageReview)
		prompt, err := e.opts.Prompts.Render(StageReviewPrompt, reviewData{Question: question, TaskText: taskText, Results: results})
		if err == nil {
			feedback, err = manager.Respond(ctx, prompt)
		}
		if err != nil {
			return nil, e.fail(ctx, s, core.StageReview, err)
		}
		s.Update(func(s *core.Session) { s.Feedback = feedback })
	}

	e.enter(ctx, s, core.StageDeliver)
	prompt, err = e.opts.Prompts.Render(StageDeliverPrompt, deliverData{Question: question, Results: results, Feedback: feedback})
	if err != nil {
		return nil, e.fail(ctx, s, core.StageDeliver, err)
	}
	answer, err := manager.Respond(ctx, prompt)
	if err != nil {
		return nil, e.fail(ctx, s, core.StageDeliver, err)
	}

	e.history.Append(core.UserMessage(question), core.AssistantMessage(answer))
	s.Update(func(s *core.Session) { s.Answer = answer })
	e.enter(ctx, s, core.StageDone)
	return nil, nil
}

func (e *Engine) managerAgent(ctx context.Context) (agent.Responder, error) {
	if e.manager != nil {
		return e.manager, nil
	}
	m, err := e.factory.NewManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("create manager: %w", err)
	}
	e.manager = m
	return m, nil
}

func (e *Engine) confirm(ctx context.Context, s *core.Session, analysis string) {
	question := StripMarkers(StripReasoning(analysis))
	s.Update(func(s *core.Session) { s.Clarification = question })

	if e.opts.ConfirmPolicy == ConfirmSurface {
		e.history.Append(core.UserMessage(s.Question), core.AssistantMessage(question))
		s.Update(func(s *core.Session) { s.Answer = question })
	}
	e.enter(ctx, s, core.StageConfirmNeeded)
}

// execute runs the task list and returns the aggregated results. Failures
// are recorded per task and never abort the run.
func (e *Engine) execute(ctx context.Context, s *core.Session, taskText string, parsed []string) string {
	logger := e.sessionLogger(ctx, s)
	ctx = agent.WithTaskObserver(ctx, func(t core.Task) {
		s.RecordTask(t)
		e.runCallbacks(ctx, &CallbackContext{Session: s, Stage: core.StageExecute, Task: &t, Type: CallbackOnTask})
	})

	ctx, span := telemetry.StartSpan(ctx, "engine.execute",
		attribute.String(telemetry.AttrSessionID, s.ID),
		attribute.Int(telemetry.AttrTaskCount, len(parsed)),
	)
	defer span.End()

	if e.opts.DispatchMode == DispatchDirect {
		specs := make([]agent.TaskSpec, len(parsed))
		for i, task := range parsed {
			specs[i] = agent.TaskSpec{Description: task, Context: executor.TaskContext(s.Question, task, i+1, len(parsed))}
		}
		outcomes := agent.RunParallel(ctx, specs, e.factory.NewWorker, func(o *agent.ParallelOptions) {
			o.Logger = e.logger
			o.Metrics = e.opts.Metrics
		})
		return agent.FormatOutcomes(outcomes)
	}

	scheduler, err := e.factory.NewScheduler(ctx)
	var results string
	if err == nil {
		results, err = scheduler.Respond(ctx, taskText)
	}
	if err == nil {
		return results
	}

	logger.Warn("engine.scheduler.failed", "error", err.Error())
	span.RecordError(err)

	// Tasks the fan-out already finished keep their outcome; only parsed
	// tasks without one are marked failed.
	var outcomes []agent.Outcome
	done := make(map[string]bool)
	next := 1
	for _, t := range s.GetTasks() {
		outcomes = append(outcomes, agent.Outcome{Task: t})
		done[t.Description] = true
		if t.Index >= next {
			next = t.Index + 1
		}
	}
	for _, task := range parsed {
		if done[task] {
			continue
		}
		t := core.Task{
			ID:          core.TaskID(next),
			Index:       next,
			Description: task,
			Failed:      true,
			Error:       err.Error(),
		}
		next++
		s.RecordTask(t)
		e.opts.Metrics.TaskFinished(true)
		outcomes = append(outcomes, agent.Outcome{Task: t, Err: &core.TaskExecutionError{TaskID: t.ID, Err: err}})
	}
	if len(outcomes) == 0 {
		return fmt.Sprintf("%s: %s", agent.LabelTaskFailed, err)
	}
	return agent.FormatOutcomes(outcomes)
}

func (e *Engine) enter(ctx context.Context, s *core.Session, stage core.Stage) {
	s.SetStage(stage)
	e.opts.Metrics.StageEntered(string(stage))
	e.sessionLogger(ctx, s).Info("engine.stage", "stage", stage)
	e.runCallbacks(ctx, &CallbackContext{Session: s, Stage: stage, Type: CallbackOnStage})
}

func (e *Engine) fail(ctx context.Context, s *core.Session, stage core.Stage, err error) error {
	serr := &core.SessionStageError{SessionID: s.ID, Stage: stage, Err: err}
	s.Update(func(s *core.Session) { s.Error = serr.Error() })
	e.enter(ctx, s, core.StageFailed)
	e.sessionLogger(ctx, s).Error("engine.run.failed", "stage", stage, "error", err.Error())
	e.runCallbacks(ctx, &CallbackContext{Session: s, Stage: stage, Err: serr, Type: CallbackOnError})
	return serr
}

func (e *Engine) runCallbacks(ctx context.Context, cbCtx *CallbackContext) {
	if err := e.callbacks.Execute(ctx, cbCtx); err != nil {
		e.sessionLogger(ctx, cbCtx.Session).Warn("engine.callback.failed", "type", cbCtx.Type, "error", err.Error())
	}
}

func (e *Engine) sessionLogger(ctx context.Context, s *core.Session) logging.Logger {
	return logging.WithContext(logging.WithSession(e.logger, s.ID), ctx)
}

func (e *Engine) archive(logger logging.Logger, s *core.Session) {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.Save(s.Clone()); err != nil {
		logger.Warn("engine.session.save_failed", "error", err.Error())
	}
}
