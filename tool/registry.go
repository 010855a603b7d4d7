package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/logging"
	"github.com/jcqin2022/AIAssistant/model"
)

// DispatchResult is delivered by DispatchAsync.
type DispatchResult struct {
	Output string
	Err    error
}

// Registry maps capability names to tools. Each agent role owns one registry;
// schemas are exported in registration order.
//
// The registry checks presence only. Argument validation against the schema
// is the caller's responsibility (see ValidateArguments).
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]Tool
	logger logging.Logger
}

// NewRegistry creates a registry holding tools. Duplicate names panic, as
// they indicate a wiring bug.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool), logger: logging.NoOpLogger{}}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// SetLogger sets the logger used for dispatch tracing.
func (r *Registry) SetLogger(l logging.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logging.OrNoOp(l)
}

// Register adds t. Registering a name twice is an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// RegisterFunc registers fn under name with the given description and schema.
func (r *Registry) RegisterFunc(name, description string, parameters map[string]any, fn HandlerFunc) error {
	return r.Register(NewFunctionTool(name, description, parameters, fn))
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ExportSchemas returns one definition per tool in registration order.
// Repeated calls return equal results.
func (r *Registry) ExportSchemas() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch invokes the named tool synchronously. An unknown name yields
// *core.CapabilityNotFoundError.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return "", &core.CapabilityNotFoundError{Name: name}
	}

	r.mu.RLock()
	logger := logging.WithContext(r.logger, ctx)
	r.mu.RUnlock()

	start := time.Now()
	logger.Debug("tool.call.start", "tool", name)

	out, err := t.Call(ctx, args)
	logging.ToolCall(logger, name, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return out, nil
}

// DispatchAsync invokes the named tool on its own goroutine. The returned
// channel receives exactly one result and is then closed. Handler panics are
// reported as errors.
func (r *Registry) DispatchAsync(ctx context.Context, name string, args map[string]any) <-chan DispatchResult {
	ch := make(chan DispatchResult, 1)
	go func() {
		defer close(ch)
		defer func() {
			if rec := recover(); rec != nil {
				ch <- DispatchResult{Err: fmt.Errorf("tool %q panicked: %v", name, rec)}
			}
		}()
		out, err := r.Dispatch(ctx, name, args)
		ch <- DispatchResult{Output: out, Err: err}
	}()
	return ch
}
