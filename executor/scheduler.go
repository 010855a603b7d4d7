package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/jcqin2022/AIAssistant/agent"
	"github.com/jcqin2022/AIAssistant/tool"
)

// Capability names exposed to the scheduler.
const (
	ExecuteSingleTaskName    = "execute_single_task"
	ExecuteMultipleTasksName = "execute_multiple_tasks"
)

// SingleTaskArgs are the arguments of execute_single_task.
type SingleTaskArgs struct {
	Task    string `json:"task" description:"task description."`
	Context string `json:"context" description:"The context for the task."`
}

// MultipleTasksArgs are the arguments of execute_multiple_tasks.
type MultipleTasksArgs struct {
	Tasks   []string `json:"tasks" description:"task description for each task."`
	Context string   `json:"context" description:"The context for all the tasks."`
}

// TaskContext renders the per-task context handed to the i-th of n workers.
func TaskContext(shared, task string, i, n int) string {
	return fmt.Sprintf("background: %s\ncurrent task: %s\ntask number: %d/%d", shared, task, i, n)
}

// NewSchedulerRegistry returns the scheduler registry. Each call of either
// capability spawns fresh workers; task numbering continues across calls so
// task identifiers stay unique for the lifetime of the registry.
func NewSchedulerRegistry(spawn agent.Spawner, optFns ...func(o *agent.ParallelOptions)) *tool.Registry {
	s := &scheduler{spawn: spawn}
	for _, fn := range optFns {
		fn(&s.opts)
	}

	return tool.NewRegistry(
		tool.NewTypedTool(ExecuteSingleTaskName,
			"Execute a task with a task description and context, and then return the result.",
			s.executeSingle),
		tool.NewTypedTool(ExecuteMultipleTasksName,
			"Execute multiple tasks concurrently with a task description list and one shared context, and then return the results of every task keyed by task number.",
			s.executeMultiple),
	)
}

type scheduler struct {
	spawn agent.Spawner
	opts  agent.ParallelOptions

	mu   sync.Mutex
	next int
}

// reserve hands out n consecutive task numbers and returns the offset.
func (s *scheduler) reserve(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := s.next
	s.next += n
	return offset
}

func (s *scheduler) executeSingle(ctx context.Context, args SingleTaskArgs) (string, error) {
	out := agent.RunTask(ctx, s.reserve(1)+1, agent.TaskSpec{Description: args.Task, Context: args.Context}, s.spawn, s.opts)
	if out.Task.Failed {
		return fmt.Sprintf("%s: %s", agent.LabelTaskFailed, out.Task.Error), nil
	}
	return out.Task.Result, nil
}

func (s *scheduler) executeMultiple(ctx context.Context, args MultipleTasksArgs) (string, error) {
	if len(args.Tasks) == 0 {
		return "", tool.NewToolError(ExecuteMultipleTasksName, "tasks must not be empty", tool.CodeValidation)
	}

	specs := make([]agent.TaskSpec, len(args.Tasks))
	for i, task := range args.Tasks {
		specs[i] = agent.TaskSpec{
			Description: task,
			Context:     TaskContext(args.Context, task, i+1, len(args.Tasks)),
		}
	}

	opts := s.opts
	opts.IndexOffset = s.reserve(len(specs))
	outcomes := agent.RunParallel(ctx, specs, s.spawn, func(o *agent.ParallelOptions) { *o = opts })
	return agent.FormatOutcomes(outcomes), nil
}
