package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of all assistant spans.
const TracerName = "github.com/jcqin2022/AIAssistant"

// Span attribute keys.
const (
	AttrAgentName      = "assistant.agent.name"
	AttrAgentRound     = "assistant.agent.round"
	AttrSessionID      = "assistant.session.id"
	AttrStage          = "assistant.session.stage"
	AttrTaskID         = "assistant.task.id"
	AttrTaskCount      = "assistant.task.count"
	AttrCapabilityName = "assistant.capability.name"
	AttrModelName      = "gen_ai.request.model"
	AttrModelProvider  = "gen_ai.system"
	AttrFinishReason   = "gen_ai.finish_reason"
)

// Tracer returns the assistant tracer from the global provider. Without a
// configured provider spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a span named name with attrs.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
