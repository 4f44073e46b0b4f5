// Package tracing records agent lifecycle events on the OpenTelemetry
// span carried by the run's context. Without an installed tracer
// provider the spans are non-recording and nothing is emitted.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nugget/loanagent/internal/agent"
)

// InstrumentationName identifies spans started by this module.
const InstrumentationName = "github.com/nugget/loanagent"

// Tracer returns the module's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Observer adds span events for each lifecycle callback.
type Observer struct{}

var _ agent.Observer = Observer{}

// TurnStarted implements agent.Observer.
func (Observer) TurnStarted(ctx context.Context, e agent.TurnEvent) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("turn_start", trace.WithAttributes(
		attribute.String("request_id", e.RequestID),
		attribute.Int("turn", e.Turn),
	))
}

// ToolDispatched implements agent.Observer.
func (Observer) ToolDispatched(ctx context.Context, e agent.ToolEvent) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool", e.Tool),
		attribute.String("call_id", e.CallID),
		attribute.Int("turn", e.Turn),
		attribute.Bool("ok", !e.IsError),
		attribute.Int64("duration_ms", e.Duration.Milliseconds()),
	}
	if e.Category != "" {
		attrs = append(attrs, attribute.String("category", string(e.Category)))
	}
	span.AddEvent("tool_dispatched", trace.WithAttributes(attrs...))
}

// TurnEnded implements agent.Observer.
func (Observer) TurnEnded(ctx context.Context, e agent.TurnEvent) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("turn_end", trace.WithAttributes(
		attribute.Int("turn", e.Turn),
		attribute.String("model", e.Usage.Model),
		attribute.Int("input_tokens", e.Usage.InputTokens),
		attribute.Int("output_tokens", e.Usage.OutputTokens),
		attribute.Int("tool_calls", e.ToolCalls),
		attribute.Bool("final", e.Final),
	))
}

// RunFinished implements agent.Observer. Failed runs set the span
// status to error.
func (Observer) RunFinished(ctx context.Context, e agent.RunEvent) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("request_id", e.RequestID),
		attribute.String("user_id", e.UserID),
		attribute.String("model", e.Model),
		attribute.Int("turns", e.Turns),
		attribute.StringSlice("tools", e.Tools),
		attribute.Int("input_tokens", e.InputTokens),
		attribute.Int("output_tokens", e.OutputTokens),
	)
	if e.Category != "" {
		span.SetAttributes(attribute.String("category", string(e.Category)))
		span.SetStatus(codes.Error, string(e.Category))
	}
}
