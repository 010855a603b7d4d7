package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/jcqin2022/AIAssistant/core"
)

// CallbackType defines the lifecycle points of a run where callbacks are
// executed.
type CallbackType string

const (
	// CallbackOnStage is triggered every time the session enters a stage.
	CallbackOnStage CallbackType = "on_stage"

	// CallbackOnTask is triggered for every finished task of the fan-out.
	// It may be called from several goroutines at once.
	CallbackOnTask CallbackType = "on_task"

	// CallbackOnError is triggered when a run fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the information available to a callback.
type CallbackContext struct {
	Session *core.Session
	Stage   core.Stage
	// Task is set for CallbackOnTask.
	Task *core.Task
	// Err is set for CallbackOnError.
	Err error
	// Type indicates which callback type triggered this execution.
	Type CallbackType
}

// Callback defines the interface for run lifecycle hooks.
//
// Callbacks run synchronously and should be fast. Errors are logged by the
// engine and never abort a run.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackOnStage, func(ctx context.Context, c *CallbackContext) error {
//	    fmt.Println("stage:", c.Stage)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// CallbackManager holds callbacks by type and executes them in registration
// order. Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// Register adds callbacks.
func (cm *CallbackManager) Register(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cb := range callbacks {
		cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
	}
}

// Execute runs every callback of cbCtx.Type. All callbacks run even if one
// fails; the first error is returned.
func (cm *CallbackManager) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[cbCtx.Type]...)
	cm.mu.RUnlock()

	var first error
	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cbCtx); err != nil && first == nil {
			first = fmt.Errorf("%s callback: %w", cbCtx.Type, err)
		}
	}
	return first
}

// LoggingCallback forwards stage transitions to a print function.
type LoggingCallback struct {
	logger func(message string)
}

// NewLoggingCallback creates a stage logging callback.
func NewLoggingCallback(logger func(message string)) *LoggingCallback {
	return &LoggingCallback{logger: logger}
}

// Type returns CallbackOnStage.
func (c *LoggingCallback) Type() CallbackType { return CallbackOnStage }

// Execute prints the stage.
func (c *LoggingCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	if c.logger != nil {
		c.logger(fmt.Sprintf("[%s] session %s", cbCtx.Stage, cbCtx.Session.ID))
	}
	return nil
}
