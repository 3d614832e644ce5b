package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/cascade"

// Tracer provides OpenTelemetry tracing for Cascade.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Cascade tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartEventSpan starts a new span for processing one event.
func (t *Tracer) StartEventSpan(ctx context.Context, eventID, actionType, userID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cascade.event",
		trace.WithAttributes(
			attribute.String("cascade.event_id", eventID),
			attribute.String("cascade.action_type", actionType),
			attribute.String("cascade.user_id", userID),
		),
	)
}

// EndEventSpan ends an event span with result attributes.
func (t *Tracer) EndEventSpan(span trace.Span, status string, processingMs int64, err string) {
	span.SetAttributes(
		attribute.String("cascade.status", status),
		attribute.Int64("cascade.processing_ms", processingMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("cascade.error", err))
	}
	span.End()
}

// StartReactionSpan starts a new span for a single reaction execution.
func (t *Tracer) StartReactionSpan(ctx context.Context, eventID, mappingID, reactionType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cascade.reaction",
		trace.WithAttributes(
			attribute.String("cascade.event_id", eventID),
			attribute.String("cascade.mapping_id", mappingID),
			attribute.String("cascade.reaction_type", reactionType),
		),
	)
}

// EndReactionSpan ends a reaction span with result attributes.
func (t *Tracer) EndReactionSpan(span trace.Span, state string, attempts int, err string) {
	span.SetAttributes(
		attribute.String("cascade.state", state),
		attribute.Int("cascade.attempts", attempts),
	)
	if err != "" {
		span.SetAttributes(attribute.String("cascade.error", err))
	}
	span.End()
}
