package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	AttrCallID       = "call.id"
	AttrCallStatus   = "call.status"
	AttrCallPriority = "call.priority"
	AttrUnitID       = "unit.id"
	AttrUnitStatus   = "unit.status"
	AttrPollName     = "poll.name"
	AttrPollCount    = "poll.count"
	AttrAlertCount   = "alert.count"
	AttrPushAttempt  = "push.attempt"
	AttrPushUserID   = "push.user_id"
	AttrErrorKind    = "error.kind"
)

// Span names.
const (
	SpanPollCycle       = "poll.cycle"
	SpanCallAttach      = "call.attach"
	SpanCallOnScene     = "call.on_scene"
	SpanCallClose       = "call.close"
	SpanCallCloseAll    = "call.close_all"
	SpanUnitStatus      = "unit.status"
	SpanPushConnect     = "push.connect"
	SpanAlertSequence   = "alert.sequence"
	SpanArtifactFetch   = "alert.artifact_fetch"
	EventAlertsDetected = "alerts.detected"
)

// Start opens an internal span with attrs. A nil tracer yields a
// non-recording span.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// Finish records err (if any) as the span status and ends the span.
// kind labels the error class (transient, rejected, auth).
func Finish(span trace.Span, err error, kind string) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind != "" {
			span.SetAttributes(attribute.String(AttrErrorKind, kind))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
