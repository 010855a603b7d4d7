package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcqin2022/AIAssistant/core"
)

func TestScriptedModel_ReplaysInOrder(t *testing.T) {
	m := NewScriptedModel("test", CallResponse("get_system", "{}"), TextResponse("done"))
	boom := errors.New("boom")
	m.AddError(boom)

	req := Request{Messages: []core.Message{core.SystemMessage("sys"), core.UserMessage("hi")}}

	r1, err := m.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, r1.IsCapabilityCall())
	assert.Equal(t, "get_system", r1.Calls[0].Name)

	r2, err := m.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, r2.IsCapabilityCall())
	assert.Equal(t, "done", r2.Content)

	_, err = m.Generate(context.Background(), req)
	assert.ErrorIs(t, err, boom)

	_, err = m.Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Len(t, m.Requests(), 4)
	assert.Equal(t, "scripted", m.Info().Provider)
}

func TestScriptedModel_CancelledContext(t *testing.T) {
	m := NewScriptedModel("test", TextResponse("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestHelpers(t *testing.T) {
	call := core.CapabilityCall{ID: "1", Name: "f"}
	req := Request{Messages: []core.Message{
		core.SystemMessage("s"),
		core.UserMessage("first"),
		core.AssistantMessage("a"),
		core.UserMessage("second"),
		core.CallMessage(call),
		core.ToolResultMessage(call, "result"),
	}}

	assert.Equal(t, "second", LastUserMessage(req))
	res, ok := LastToolResult(req)
	assert.True(t, ok)
	assert.Equal(t, "result", res)

	_, ok = LastToolResult(Request{Messages: req.Messages[:2]})
	assert.False(t, ok)
}

func TestResponse_IsCapabilityCall(t *testing.T) {
	var nilResp *Response
	assert.False(t, nilResp.IsCapabilityCall())
	assert.False(t, (&Response{FinishReason: FinishToolCalls}).IsCapabilityCall())
	assert.False(t, (&Response{FinishReason: FinishLength, Content: "x"}).IsCapabilityCall())
}
