package testutil

import (
	"time"

	"github.com/jcqin2022/AIAssistant/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").Question("2+2?").Task("2+2", "4").Stage(core.StageDone).Build()
type SessionBuilder struct {
	id       string
	question string
	stage    core.Stage
	tasks    []core.Task
	answer   string
	updated  time.Time
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, question: "question " + id}
}

// Question sets the user question (chainable).
func (b *SessionBuilder) Question(q string) *SessionBuilder { b.question = q; return b }

// Stage sets the final stage (chainable).
func (b *SessionBuilder) Stage(s core.Stage) *SessionBuilder { b.stage = s; return b }

// Answer sets the delivered answer (chainable).
func (b *SessionBuilder) Answer(a string) *SessionBuilder { b.answer = a; return b }

// Updated overrides the last update time (chainable).
func (b *SessionBuilder) Updated(t time.Time) *SessionBuilder { b.updated = t; return b }

// Task appends a successful task; indices follow call order (chainable).
func (b *SessionBuilder) Task(description, result string) *SessionBuilder {
	i := len(b.tasks) + 1
	b.tasks = append(b.tasks, core.Task{ID: core.TaskID(i), Index: i, Description: description, Result: result})
	return b
}

// FailedTask appends a failed task (chainable).
func (b *SessionBuilder) FailedTask(description, errMsg string) *SessionBuilder {
	i := len(b.tasks) + 1
	b.tasks = append(b.tasks, core.Task{ID: core.TaskID(i), Index: i, Description: description, Failed: true, Error: errMsg})
	return b
}

// Build returns a *core.Session with the configured fields.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id, b.question)
	for _, t := range b.tasks {
		s.RecordTask(t)
	}
	if b.stage != "" {
		s.SetStage(b.stage)
	}
	if b.answer != "" {
		s.Update(func(s *core.Session) { s.Answer = b.answer })
	}
	if !b.updated.IsZero() {
		s.Updated = b.updated
	}
	return s
}
