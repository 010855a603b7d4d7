package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcqin2022/AIAssistant/agent"
	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/executor"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/model"
	"github.com/jcqin2022/AIAssistant/telemetry"
)

const twoTaskAnalysis = `<think>The user asks two things. [CONFIRM] is not needed.</think>
1. Intent: arithmetic and geography
2. [TASK_LIST]
[TASK] What is 2+2
[TASK] What is the capital of France`

type fakeRunner struct{}

func (fakeRunner) ExecuteScript(_ context.Context, script string) (string, error) { return script, nil }
func (fakeRunner) System() executor.System                                        { return executor.Linux }

// managerModel answers the three manager stages; analysis is returned for
// the intent analysis prompt.
func managerModel(analysis string) *model.FuncModel {
	return model.NewFuncModel("manager", func(_ context.Context, req model.Request) (*model.Response, error) {
		msg := model.LastUserMessage(req)
		switch {
		case strings.Contains(msg, "## Intent analysis"):
			return model.TextResponse(analysis), nil
		case strings.Contains(msg, "## Result review"):
			return model.TextResponse("Both results are correct."), nil
		case strings.Contains(msg, "## Final answer"):
			var parts []string
			if strings.Contains(msg, "RESULT: 4") {
				parts = append(parts, "2+2 is 4")
			}
			if strings.Contains(msg, "RESULT: Paris") {
				parts = append(parts, "the capital of France is Paris")
			}
			return model.TextResponse(strings.Join(parts, " and ") + "."), nil
		}
		return nil, errors.New("unexpected manager prompt")
	})
}

func workerModel() *model.FuncModel {
	return model.NewFuncModel("worker", func(_ context.Context, req model.Request) (*model.Response, error) {
		msg := model.LastUserMessage(req)
		switch {
		case strings.Contains(msg, "task: What is 2+2"):
			return model.TextResponse("4"), nil
		case strings.Contains(msg, "task: What is the capital of France"):
			return model.TextResponse("Paris"), nil
		}
		return nil, errors.New("unknown task")
	})
}

func schedulerModel() *model.FuncModel {
	return model.NewFuncModel("scheduler", func(_ context.Context, req model.Request) (*model.Response, error) {
		if res, ok := model.LastToolResult(req); ok {
			return model.TextResponse(res), nil
		}
		var tasks []string
		for _, line := range strings.Split(model.LastUserMessage(req), "\n") {
			if after, ok := strings.CutPrefix(line, MarkerTaskItem+" "); ok {
				tasks = append(tasks, `"`+after+`"`)
			}
		}
		args := `{"tasks":[` + strings.Join(tasks, ",") + `],"context":"answer the user's questions"}`
		return model.CallResponse(executor.ExecuteMultipleTasksName, args), nil
	})
}

func newCreator(manager, scheduler, worker model.Backend) *Creator {
	return NewCreator(CreatorConfig{
		Backends: map[Role]model.Backend{
			RoleManager:   manager,
			RoleScheduler: scheduler,
			RoleWorker:    worker,
		},
		Runner: fakeRunner{},
	})
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
}

func (m *memStore) Save(s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = map[string]*core.Session{}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) Get(id string) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, core.ErrSessionNotFound
}

func (m *memStore) List(int) ([]*core.Session, error) { return nil, nil }

func TestEngine_EndToEndScheduler(t *testing.T) {
	store := &memStore{}
	var (
		mu     sync.Mutex
		stages []core.Stage
	)
	onStage := NewFunctionCallback(CallbackOnStage, func(_ context.Context, c *CallbackContext) error {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, c.Stage)
		return nil
	})

	e := New(newCreator(managerModel(twoTaskAnalysis), schedulerModel(), workerModel()), func(o *Options) {
		o.Store = store
		o.Callbacks = []Callback{onStage}
	})

	s, err := e.Run(context.Background(), "What is 2+2 and what is the capital of France?")
	require.NoError(t, err)

	assert.Equal(t, core.StageDone, s.Stage)
	assert.Equal(t, "2+2 is 4 and the capital of France is Paris.", s.Answer)
	assert.Equal(t, "Both results are correct.", s.Feedback)
	assert.True(t, strings.HasPrefix(s.TaskText, MarkerTaskList))

	require.Len(t, s.Tasks, 2)
	assert.Equal(t, "task_1", s.Tasks[0].ID)
	assert.Equal(t, "4", s.Tasks[0].Result)
	assert.Equal(t, "Paris", s.Tasks[1].Result)
	assert.False(t, s.Tasks[0].Failed || s.Tasks[1].Failed)

	msgs := e.History().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.UserMessage("What is 2+2 and what is the capital of France?"), msgs[0])
	assert.Equal(t, core.AssistantMessage(s.Answer), msgs[1])

	assert.Equal(t, []core.Stage{
		core.StageAnalyze, core.StageDispatch, core.StageExecute,
		core.StageReview, core.StageDeliver, core.StageDone,
	}, stages)

	saved, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StageDone, saved.Stage)
}

func TestEngine_LogsCarrySessionID(t *testing.T) {
	var buf bytes.Buffer
	e := New(newCreator(managerModel(twoTaskAnalysis), schedulerModel(), workerModel()), func(o *Options) {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: &buf})
	})

	s, err := e.Run(context.Background(), "What is 2+2 and what is the capital of France?")
	require.NoError(t, err)

	var stages int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "engine.stage" {
			stages++
			assert.Equal(t, s.ID, entry["session_id"])
		}
	}
	assert.Equal(t, 6, stages)
}

func TestEngine_DirectDispatch(t *testing.T) {
	scheduler := model.NewFuncModel("scheduler", func(context.Context, model.Request) (*model.Response, error) {
		return nil, errors.New("scheduler must not be used")
	})
	e := New(newCreator(managerModel(twoTaskAnalysis), scheduler, workerModel()), func(o *Options) {
		o.DispatchMode = DispatchDirect
	})

	s, err := e.Run(context.Background(), "What is 2+2 and what is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "2+2 is 4 and the capital of France is Paris.", s.Answer)
	require.Len(t, s.Tasks, 2)
	assert.Contains(t, s.Tasks[0].Context, "background: What is 2+2 and what is the capital of France?")
	assert.Contains(t, s.Results, "[task_2] TASK: What is the capital of France\nRESULT: Paris")
}

func TestEngine_ReviewDisabled(t *testing.T) {
	var prompts []string
	manager := managerModel(twoTaskAnalysis)
	recording := model.NewFuncModel("manager", func(ctx context.Context, req model.Request) (*model.Response, error) {
		prompts = append(prompts, model.LastUserMessage(req))
		return manager.Generate(ctx, req)
	})

	e := New(newCreator(recording, schedulerModel(), workerModel()), func(o *Options) { o.EnableReview = false })
	s, err := e.Run(context.Background(), "What is 2+2 and what is the capital of France?")
	require.NoError(t, err)

	assert.Empty(t, s.Feedback)
	assert.Len(t, prompts, 2)
	for _, p := range prompts {
		assert.NotContains(t, p, "## Result review")
	}
}

func TestEngine_ConfirmPolicies(t *testing.T) {
	analysis := "<think>I could plan [TASK_LIST] [TASK] delete pods</think>[CONFIRM] Which namespace do you mean?"

	t.Run("abort", func(t *testing.T) {
		e := New(newCreator(managerModel(analysis), schedulerModel(), workerModel()))
		s, err := e.Run(context.Background(), "clean up the pods")
		require.NoError(t, err)

		assert.Equal(t, core.StageConfirmNeeded, s.Stage)
		assert.Empty(t, s.Answer)
		assert.Equal(t, "Which namespace do you mean?", s.Clarification)
		assert.Empty(t, s.Tasks)
		assert.Equal(t, 0, e.History().Len())
	})

	t.Run("surface", func(t *testing.T) {
		e := New(newCreator(managerModel(analysis), schedulerModel(), workerModel()), func(o *Options) {
			o.ConfirmPolicy = ConfirmSurface
		})
		answer, err := e.Ask(context.Background(), "clean up the pods")
		require.NoError(t, err)

		assert.Equal(t, "Which namespace do you mean?", answer)
		assert.Equal(t, 2, e.History().Len())
	})
}

func TestEngine_Unparsed(t *testing.T) {
	e := New(newCreator(managerModel("I am not sure what to do."), schedulerModel(), workerModel()))
	s, err := e.Run(context.Background(), "???")
	require.NoError(t, err)
	assert.Equal(t, core.StageUnparsed, s.Stage)
	assert.Equal(t, UnparsedAnswer, s.Answer)
	assert.Equal(t, 0, e.History().Len())
}

func TestEngine_SchedulerFailureMarksTasksFailed(t *testing.T) {
	scheduler := model.NewFuncModel("scheduler", func(context.Context, model.Request) (*model.Response, error) {
		return nil, errors.New("scheduler offline")
	})
	e := New(newCreator(managerModel(twoTaskAnalysis), scheduler, workerModel()))

	s, err := e.Run(context.Background(), "What is 2+2 and what is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, core.StageDone, s.Stage)

	require.Len(t, s.Tasks, 2)
	for _, task := range s.Tasks {
		assert.True(t, task.Failed)
		assert.Contains(t, task.Error, "scheduler offline")
	}
	assert.Contains(t, s.Results, "TASK_FAILED")
}

func TestEngine_SchedulerFailureKeepsFinishedTasks(t *testing.T) {
	// the scheduler fans out the first task only, then its follow-up round fails
	scheduler := model.NewFuncModel("scheduler", func(_ context.Context, req model.Request) (*model.Response, error) {
		if _, ok := model.LastToolResult(req); ok {
			return nil, errors.New("scheduler offline")
		}
		return model.CallResponse(executor.ExecuteMultipleTasksName, `{"tasks":["What is 2+2"],"context":"math"}`), nil
	})

	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	creator := NewCreator(CreatorConfig{
		Backends: map[Role]model.Backend{
			RoleManager:   managerModel(twoTaskAnalysis),
			RoleScheduler: scheduler,
			RoleWorker:    workerModel(),
		},
		Runner:  fakeRunner{},
		Metrics: metrics,
	})
	e := New(creator, func(o *Options) { o.Metrics = metrics })

	s, err := e.Run(context.Background(), "What is 2+2 and what is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, core.StageDone, s.Stage)

	require.Len(t, s.Tasks, 2)
	assert.Equal(t, "task_1", s.Tasks[0].ID)
	assert.False(t, s.Tasks[0].Failed)
	assert.Equal(t, "4", s.Tasks[0].Result)

	assert.Equal(t, "task_2", s.Tasks[1].ID)
	assert.Equal(t, "What is the capital of France", s.Tasks[1].Description)
	assert.True(t, s.Tasks[1].Failed)
	assert.Contains(t, s.Tasks[1].Error, "scheduler offline")

	assert.Contains(t, s.Results, "RESULT: 4")
	assert.Contains(t, s.Results, "TASK_FAILED")
	assert.Equal(t, "2+2 is 4.", s.Answer)

	expected := `
# HELP aiassistant_task_total Fanned-out tasks finished, by outcome.
# TYPE aiassistant_task_total counter
aiassistant_task_total{outcome="failed"} 1
aiassistant_task_total{outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "aiassistant_task_total"))
}

func TestEngine_WorkerFailureIsIsolated(t *testing.T) {
	worker := model.NewFuncModel("worker", func(_ context.Context, req model.Request) (*model.Response, error) {
		if strings.Contains(model.LastUserMessage(req), "France") {
			return nil, errors.New("geography service down")
		}
		return model.TextResponse("4"), nil
	})
	e := New(newCreator(managerModel(twoTaskAnalysis), schedulerModel(), worker))

	s, err := e.Run(context.Background(), "What is 2+2 and what is the capital of France?")
	require.NoError(t, err)

	require.Len(t, s.Tasks, 2)
	assert.False(t, s.Tasks[0].Failed)
	assert.True(t, s.Tasks[1].Failed)
	assert.Equal(t, "2+2 is 4.", s.Answer)
}

type stubFactory struct {
	manager agent.Responder
	err     error
}

func (f *stubFactory) NewManager(context.Context) (agent.Responder, error) { return f.manager, f.err }
func (f *stubFactory) NewScheduler(context.Context) (agent.Responder, error) {
	return nil, errors.New("no scheduler")
}
func (f *stubFactory) NewWorker(context.Context) (agent.Responder, error) {
	return nil, errors.New("no worker")
}

type responderFunc func(ctx context.Context, message string) (string, error)

func (f responderFunc) Respond(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

func TestEngine_ManagerFailureIsStageError(t *testing.T) {
	calls := 0
	manager := responderFunc(func(_ context.Context, msg string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("backend unavailable")
		}
		return "[CONFIRM] really?", nil
	})
	store := &memStore{}
	e := New(&stubFactory{manager: manager}, func(o *Options) { o.Store = store })

	s, err := e.Run(context.Background(), "hello")
	var stageErr *core.SessionStageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.StageAnalyze, stageErr.Stage)
	require.NotNil(t, s)
	assert.Equal(t, core.StageFailed, s.Stage)
	assert.NotEmpty(t, s.Error)

	saved, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StageFailed, saved.Stage)

	// the engine stays usable
	s, err = e.Run(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Equal(t, core.StageConfirmNeeded, s.Stage)
}

func TestEngine_DeliverFailure(t *testing.T) {
	manager := responderFunc(func(_ context.Context, msg string) (string, error) {
		if strings.Contains(msg, "## Final answer") {
			return "", errors.New("timeout")
		}
		return twoTaskAnalysis, nil
	})
	e := New(&stubFactory{manager: manager}, func(o *Options) { o.EnableReview = false })

	_, err := e.Run(context.Background(), "q")
	var stageErr *core.SessionStageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.StageDeliver, stageErr.Stage)
	assert.Equal(t, 0, e.History().Len())
}

func TestEngine_FactoryManagerError(t *testing.T) {
	e := New(&stubFactory{err: errors.New("no backend")})
	_, err := e.Ask(context.Background(), "q")
	var stageErr *core.SessionStageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.StageAnalyze, stageErr.Stage)
}

func TestCreator(t *testing.T) {
	c := NewCreator(CreatorConfig{Default: workerModel(), Runner: fakeRunner{}})

	pc, err := c.NewAssistant(KindPC, RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, []string{executor.ExecuteScriptName, executor.GetSystemName}, pc.Registry().Names())

	cluster, err := c.NewAssistant(KindCluster, RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, "cluster", cluster.Name())

	_, err = NewCreator(CreatorConfig{}).NewWorker(context.Background())
	assert.ErrorIs(t, err, ErrNoRunner)

	m, err := c.NewManager(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.(*agent.Agent).Registry().Len())

	sched, err := c.NewScheduler(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{executor.ExecuteSingleTaskName, executor.ExecuteMultipleTasksName}, sched.(*agent.Agent).Registry().Names())
}

func TestCreator_MaxRounds(t *testing.T) {
	busyWorker := func() *model.ScriptedModel {
		m := model.NewScriptedModel("busy")
		for i := 0; i < agent.DefaultMaxRounds+5; i++ {
			m.Add(model.CallResponse(executor.GetSystemName, "{}"))
		}
		m.Add(model.TextResponse("Linux"))
		return m
	}

	pc, err := NewCreator(CreatorConfig{Default: busyWorker(), Runner: fakeRunner{}}).NewAssistant(KindPC, RoleWorker)
	require.NoError(t, err)
	_, err = pc.Respond(context.Background(), "which os?")
	var loop *core.LoopExceededError
	assert.ErrorAs(t, err, &loop)

	pc, err = NewCreator(CreatorConfig{Default: busyWorker(), Runner: fakeRunner{}, MaxRounds: -1}).NewAssistant(KindPC, RoleWorker)
	require.NoError(t, err)
	answer, err := pc.Respond(context.Background(), "which os?")
	require.NoError(t, err)
	assert.Equal(t, "Linux", answer)
}
