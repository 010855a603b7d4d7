package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoBackend is returned by an agent that has no model backend attached.
var ErrNoBackend = errors.New("no model backend attached")

// CapabilityNotFoundError reports a call to a name the registry does not hold.
// Its text is surfaced verbatim to the caller of an agent.
type CapabilityNotFoundError struct {
	Name string
}

func (e *CapabilityNotFoundError) Error() string {
	return "Function not found: " + e.Name
}

// ArgumentValidationError reports a capability call whose argument names do
// not match the declared schema.
type ArgumentValidationError struct {
	Capability string
	Missing    []string
	Extra      []string
	// Malformed is set when the arguments were not a JSON object at all.
	Malformed error
}

func (e *ArgumentValidationError) Error() string {
	var b strings.Builder
	b.WriteString("Invalid number of arguments for function: ")
	b.WriteString(e.Capability)

	var details []string
	if len(e.Missing) > 0 {
		details = append(details, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		details = append(details, "unexpected "+strings.Join(e.Extra, ", "))
	}
	if e.Malformed != nil {
		details = append(details, "malformed arguments: "+e.Malformed.Error())
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *ArgumentValidationError) Unwrap() error { return e.Malformed }

// HasMissing reports whether required arguments were absent.
func (e *ArgumentValidationError) HasMissing() bool { return len(e.Missing) > 0 }

// HasExtra reports whether undeclared arguments were supplied.
func (e *ArgumentValidationError) HasExtra() bool { return len(e.Extra) > 0 }

// LoopExceededError is returned when an agent keeps requesting capabilities
// past its configured round limit.
type LoopExceededError struct {
	Agent     string
	MaxRounds int
}

func (e *LoopExceededError) Error() string {
	return fmt.Sprintf("agent %q exceeded max capability rounds: %d", e.Agent, e.MaxRounds)
}

// TaskExecutionError wraps the failure of a single fanned-out task.
type TaskExecutionError struct {
	TaskID string
	Err    error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// SessionStageError reports that the manager failed during a stage of an
// orchestrated session.
type SessionStageError struct {
	SessionID string
	Stage     Stage
	Err       error
}

func (e *SessionStageError) Error() string {
	return fmt.Sprintf("session %s: stage %s failed: %v", e.SessionID, e.Stage, e.Err)
}

func (e *SessionStageError) Unwrap() error { return e.Err }
