package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/telemetry"
)

// Labels used when rendering aggregated task outcomes.
const (
	LabelTask       = "TASK"
	LabelResult     = "RESULT"
	LabelTaskFailed = "TASK_FAILED"
)

// Responder is anything that answers a message, typically an *Agent.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// Spawner creates a fresh worker for one task.
type Spawner func(ctx context.Context) (Responder, error)

// TaskSpec describes one task to fan out.
type TaskSpec struct {
	Description string
	Context     string
}

// Outcome is the result of one fanned-out task. Err is a
// *core.TaskExecutionError when the task failed.
type Outcome struct {
	Task core.Task
	Err  error
}

// ParallelOptions configure RunParallel.
type ParallelOptions struct {
	Logger  logging.Logger
	Metrics *telemetry.Metrics
	// IndexOffset shifts task numbering; task i of a fan-out is numbered
	// IndexOffset+i+1.
	IndexOffset int
}

type observerKey struct{}

// WithTaskObserver returns a context whose fan-outs report every finished
// task to fn. fn may be called from several goroutines at once.
func WithTaskObserver(ctx context.Context, fn func(core.Task)) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func taskObserver(ctx context.Context) func(core.Task) {
	if fn, ok := ctx.Value(observerKey{}).(func(core.Task)); ok && fn != nil {
		return fn
	}
	return func(core.Task) {}
}

// WorkerMessage renders the message a worker receives for a task.
func WorkerMessage(taskContext, task string) string {
	return fmt.Sprintf("context: %s\ntask: %s", taskContext, task)
}

// RunParallel runs every task on its own freshly spawned worker, all
// concurrently, and waits for all of them. A failing or panicking task never
// affects its siblings. Outcomes are returned in submission order.
//
// There is no per-task cancellation; a deadline on ctx is seen by every
// worker.
func RunParallel(ctx context.Context, tasks []TaskSpec, spawn Spawner, optFns ...func(o *ParallelOptions)) []Outcome {
	opts := ParallelOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.WithContext(logging.OrNoOp(opts.Logger), ctx)

	ctx, span := telemetry.StartSpan(ctx, "agent.fanout", attribute.Int(telemetry.AttrTaskCount, len(tasks)))
	defer span.End()

	logger.Info("fanout.start", "tasks", len(tasks))
	start := time.Now()

	outcomes := make([]Outcome, len(tasks))

	var wg sync.WaitGroup
	for i, spec := range tasks {
		wg.Add(1)
		go func(i int, spec TaskSpec) {
			defer wg.Done()
			outcomes[i] = RunTask(ctx, opts.IndexOffset+i+1, spec, spawn, opts)
		}(i, spec)
	}
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Task.Failed {
			failed++
		}
	}
	logger.Info("fanout.done", "tasks", len(tasks), "failed", failed, "duration", time.Since(start))

	return outcomes
}

// RunTask runs a single task synchronously on a freshly spawned worker.
// index is the 1-based submission position.
func RunTask(ctx context.Context, index int, spec TaskSpec, spawn Spawner, opts ParallelOptions) (out Outcome) {
	logger := logging.WithContext(logging.OrNoOp(opts.Logger), ctx)

	task := core.Task{
		ID:          core.TaskID(index),
		Index:       index,
		Description: spec.Description,
		Context:     spec.Context,
	}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			out = failedOutcome(task, fmt.Errorf("worker panicked: %v", rec))
		}
		out.Task.Duration = time.Since(start)
		if out.Task.Failed {
			logger.Warn("fanout.task.failed", "task", task.ID, "error", out.Task.Error)
		} else {
			logger.Debug("fanout.task.done", "task", task.ID)
		}
		opts.Metrics.TaskFinished(out.Task.Failed)
		taskObserver(ctx)(out.Task)
	}()

	worker, err := spawn(ctx)
	if err != nil {
		return failedOutcome(task, fmt.Errorf("spawn worker: %w", err))
	}

	result, err := worker.Respond(ctx, WorkerMessage(spec.Context, spec.Description))
	if err != nil {
		return failedOutcome(task, err)
	}

	task.Result = result
	return Outcome{Task: task}
}

func failedOutcome(task core.Task, err error) Outcome {
	terr := &core.TaskExecutionError{TaskID: task.ID, Err: err}
	task.Failed = true
	task.Error = err.Error()
	return Outcome{Task: task, Err: terr}
}

// FormatOutcomes renders outcomes in submission order, one block per task
// keyed by its identifier.
func FormatOutcomes(outcomes []Outcome) string {
	var b strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", o.Task.ID, LabelTask, o.Task.Description)
		if o.Task.Failed {
			fmt.Fprintf(&b, "%s: %s", LabelTaskFailed, o.Task.Error)
		} else {
			fmt.Fprintf(&b, "%s: %s", LabelResult, o.Task.Result)
		}
	}
	return b.String()
}
