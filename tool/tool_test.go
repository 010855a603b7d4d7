package tool

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/logging"
)

type pairArgs struct {
	A string `json:"a"`
	B string `json:"b"`
}

func newPairTool() *FunctionTool {
	return NewTypedTool("concat", "Concatenate a and b", func(_ context.Context, args pairArgs) (string, error) {
		return args.A + args.B, nil
	})
}

func TestValidateArguments(t *testing.T) {
	tl := newPairTool()

	assert.NoError(t, ValidateArguments(tl, map[string]any{"a": "1", "b": "2"}))

	err := ValidateArguments(tl, map[string]any{"a": "1"})
	var verr *core.ArgumentValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasMissing())
	assert.Equal(t, []string{"b"}, verr.Missing)

	err = ValidateArguments(tl, map[string]any{"a": "1", "b": "2", "d": "3"})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasExtra())
	assert.Equal(t, []string{"d"}, verr.Extra)
	assert.Contains(t, err.Error(), "Invalid number of arguments for function: concat")
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments("f", `{"a":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, "x", args["a"])

	args, err = ParseArguments("f", "  ")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ParseArguments("f", `{not json`)
	var verr *core.ArgumentValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotNil(t, verr.Malformed)
}

func TestTypedTool_CallDecodesArguments(t *testing.T) {
	tl := newPairTool()

	out, err := tl.Call(context.Background(), map[string]any{"a": "foo", "b": "bar"})
	require.NoError(t, err)
	assert.Equal(t, "foobar", out)

	_, err = tl.Call(context.Background(), map[string]any{"a": 1, "b": "bar"})
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeValidation, terr.Code)
}

func TestFunctionTool_ExecutionErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	tl := NewFunctionTool("fail", "always fails", nil, func(context.Context, map[string]any) (string, error) {
		return "", boom
	})

	_, err := tl.Call(context.Background(), map[string]any{})
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeExecution, terr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_RegisterAndExport(t *testing.T) {
	r := NewRegistry(newPairTool())
	require.NoError(t, r.RegisterFunc("noop", "does nothing", nil, func(context.Context, map[string]any) (string, error) {
		return "ok", nil
	}))

	assert.Error(t, r.Register(newPairTool()), "duplicate names are rejected")
	assert.Equal(t, []string{"concat", "noop"}, r.Names())

	first := r.ExportSchemas()
	second := r.ExportSchemas()
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "concat", first[0].Name)
	assert.Equal(t, "noop", first[1].Name)
}

func TestRegistry_EmptyExportsNothing(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.ExportSchemas())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DispatchUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Dispatch(context.Background(), "sing", nil)
	var nf *core.CapabilityNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Function not found: sing", err.Error())
}

func TestRegistry_DispatchAsync(t *testing.T) {
	r := NewRegistry(newPairTool())
	require.NoError(t, r.RegisterFunc("panics", "", nil, func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	}))

	res := <-r.DispatchAsync(context.Background(), "concat", map[string]any{"a": "x", "b": "y"})
	require.NoError(t, res.Err)
	assert.Equal(t, "xy", res.Output)

	res = <-r.DispatchAsync(context.Background(), "panics", map[string]any{})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestRegistry_DispatchLogsCall(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(newPairTool(), NewFunctionTool("fail", "", nil, func(context.Context, map[string]any) (string, error) {
		return "", errors.New("no luck")
	}))
	r.SetLogger(logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Output: &buf}))

	_, err := r.Dispatch(context.Background(), "concat", map[string]any{"a": "x", "b": "y"})
	require.NoError(t, err)
	_, err = r.Dispatch(context.Background(), "fail", map[string]any{})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "msg=tool.call.completed tool_name=concat")
	assert.Contains(t, out, "msg=tool.call.failed tool_name=fail")
	assert.Contains(t, out, "error=\"no luck\"")
}
