package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/jcqin2022/AIAssistant/internal/util"
)

// HandlerFunc is the implementation behind a FunctionTool.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a JSON schema parameter specification
//   - Validates argument types against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR -> schema / argument mismatch
//     DECODE_ERROR     -> arguments could not be decoded into the typed struct
//     EXECUTION_ERROR  -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          HandlerFunc
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	echo := NewFunctionTool(
//	  "echo",
//	  "Echo the given text",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{"text": map[string]any{"type": "string"}},
//	    "required": []string{"text"},
//	  },
//	  func(ctx context.Context, args map[string]any) (string, error) {
//	    return args["text"].(string), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn HandlerFunc) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewTypedTool derives the parameter schema from the struct type A and decodes
// raw arguments into an A before invoking fn.
//
// Example:
//
//	type ScriptArgs struct {
//	  Script string `json:"script" description:"Script to execute"`
//	}
//
//	t := NewTypedTool("execute_script", "Run a shell script",
//	  func(ctx context.Context, args ScriptArgs) (string, error) { return run(ctx, args.Script) })
func NewTypedTool[A any](name, description string, fn func(ctx context.Context, args A) (string, error)) *FunctionTool {
	var zero A
	return NewFunctionTool(name, description, util.CreateSchema(zero), func(ctx context.Context, raw map[string]any) (string, error) {
		var args A
		if err := util.DecodeArguments(raw, &args); err != nil {
			return "", &ToolError{Tool: name, Message: err.Error(), Code: CodeDecode, Details: err}
		}
		return fn(ctx, args)
	})
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes
// the underlying function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (string, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return "", &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return "", toolErr
		}
		return "", &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	return result, nil
}
