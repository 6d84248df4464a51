package tracing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(DefaultConfig())
	require.NoError(t, err)
	require.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())

	_, span := p.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.FilePath = filepath.Join(t.TempDir(), "traces", "traces.jsonl")

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanPollCycle)
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	records := readRecords(t, cfg.FilePath)
	require.Len(t, records, 1)
	require.Equal(t, SpanPollCycle, records[0].Name)
}

func TestNewProvider_FileExporterRequiresPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	_, err := NewProvider(cfg)
	require.ErrorContains(t, err, "file_path required")
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "zipkin"

	_, err := NewProvider(cfg)
	require.ErrorContains(t, err, "unsupported exporter type")
}

func TestNewProvider_NoneExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "none"

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	require.True(t, p.Enabled())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	require.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestStartFinish(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	_, span := Start(context.Background(), tracer, SpanCallAttach, attribute.String(AttrCallID, "c1"))
	Finish(span, errors.New("already assigned"), "rejected")

	_, span = Start(context.Background(), tracer, SpanCallClose, attribute.String(AttrCallID, "c2"))
	Finish(span, nil, "")

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	require.Equal(t, SpanCallAttach, ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Contains(t, ended[0].Attributes(), attribute.String(AttrErrorKind, "rejected"))
	require.Contains(t, ended[0].Attributes(), attribute.String(AttrCallID, "c1"))
	require.Len(t, ended[0].Events(), 1)

	require.Equal(t, codes.Ok, ended[1].Status().Code)
}

func TestStart_NilTracer(t *testing.T) {
	ctx, span := Start(context.Background(), nil, SpanPollCycle)
	require.NotNil(t, ctx)
	require.False(t, span.IsRecording())
	Finish(span, nil, "")
}
