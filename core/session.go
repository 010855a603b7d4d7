package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Stage is a state of the orchestration state machine.
type Stage string

const (
	StageAnalyze       Stage = "ANALYZE"
	StageConfirmNeeded Stage = "CONFIRM_NEEDED"
	StageUnparsed      Stage = "UNPARSED"
	StageDispatch      Stage = "DISPATCH"
	StageExecute       Stage = "EXECUTE"
	StageReview        Stage = "REVIEW"
	StageDeliver       Stage = "DELIVER"
	StageDone          Stage = "DONE"
	StageFailed        Stage = "FAILED"
)

// Task is one unit of work handed to a worker agent. Index is 1-based and
// follows submission order.
type Task struct {
	ID          string        `json:"id"`
	Index       int           `json:"index"`
	Description string        `json:"description"`
	Context     string        `json:"context,omitempty"`
	Result      string        `json:"result,omitempty"`
	Failed      bool          `json:"failed"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// TaskID returns the identifier of the task at 1-based index.
func TaskID(index int) string {
	return fmt.Sprintf("task_%d", index)
}

// Session records one orchestrated question as it moves through the stages.
// It is safe for concurrent access; fanned-out workers report task outcomes
// while the orchestrator holds the session.
//
// Contract:
//   - Stage transitions and mutations update the Updated timestamp
//   - RecordTask replaces a task with the same ID and keeps Tasks ordered by Index
//   - Clone returns a deep copy safe for persistence.
type Session struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Stage         Stage     `json:"stage"`
	TaskText      string    `json:"task_text,omitempty"`
	Tasks         []Task    `json:"tasks"`
	Results       string    `json:"results,omitempty"`
	Feedback      string    `json:"feedback,omitempty"`
	Clarification string    `json:"clarification,omitempty"`
	Answer        string    `json:"answer,omitempty"`
	Error         string    `json:"error,omitempty"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
	mu            sync.RWMutex
}

// NewSession creates a session for question in the ANALYZE stage.
func NewSession(id, question string) *Session {
	now := time.Now()
	return &Session{ID: id, Question: question, Stage: StageAnalyze, Tasks: []Task{}, Created: now, Updated: now}
}

// SetStage moves the session to stage.
func (s *Session) SetStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stage = stage
	s.Updated = time.Now()
}

// CurrentStage returns the current stage.
func (s *Session) CurrentStage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stage
}

// Update applies fn to the session under its write lock.
func (s *Session) Update(fn func(s *Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
	s.Updated = time.Now()
}

// RecordTask stores a task outcome.
func (s *Session) RecordTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.Updated = time.Now() }()

	for i := range s.Tasks {
		if s.Tasks[i].ID == t.ID {
			s.Tasks[i] = t
			return
		}
	}

	pos := len(s.Tasks)
	for pos > 0 && s.Tasks[pos-1].Index > t.Index {
		pos--
	}
	s.Tasks = append(s.Tasks, Task{})
	copy(s.Tasks[pos+1:], s.Tasks[pos:])
	s.Tasks[pos] = t
}

// GetTasks returns a copy of the recorded tasks.
func (s *Session) GetTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]Task, len(s.Tasks))
	copy(tasks, s.Tasks)
	return tasks
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:            s.ID,
		Question:      s.Question,
		Stage:         s.Stage,
		TaskText:      s.TaskText,
		Tasks:         make([]Task, len(s.Tasks)),
		Results:       s.Results,
		Feedback:      s.Feedback,
		Clarification: s.Clarification,
		Answer:        s.Answer,
		Error:         s.Error,
		Created:       s.Created,
		Updated:       s.Updated,
	}
	copy(clone.Tasks, s.Tasks)
	return clone
}

// ErrSessionNotFound is returned by a SessionStore for an unknown ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore archives finished orchestration sessions.
type SessionStore interface {
	Save(s *Session) error
	Get(id string) (*Session, error)
	// List returns up to limit sessions, most recently updated first.
	// A limit <= 0 returns all sessions.
	List(limit int) ([]*Session, error)
}
