// Package trace records driver operations as OpenTelemetry spans. Each
// session has a live navigation span, started by every page load, and
// the operations on the page are its children.
package trace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/editorqa/uidriver/log"
)

const tracerName = "uidriver"

// Tracer generates the spans of driver operations, correlating them with
// the page navigation of the session they run in.
type Tracer struct {
	trace.Tracer

	logger   *log.Logger
	metadata []attribute.KeyValue

	// liveSpans holds the navigation span of each session.
	liveSpansMu sync.Mutex
	liveSpans   map[string]trace.Span
}

// NewTracer creates a new Tracer from the given TracerProvider. The
// metadata is added to every span as attributes.
func NewTracer(tp trace.TracerProvider, logger *log.Logger, metadata map[string]string, options ...trace.TracerOption) *Tracer {
	return &Tracer{
		Tracer:    tp.Tracer(tracerName, options...),
		logger:    logger,
		metadata:  buildMetadataAttributes(metadata),
		liveSpans: make(map[string]trace.Span),
	}
}

// NewNoopTracer returns a Tracer that records nothing.
func NewNoopTracer() *Tracer {
	return NewTracer(noop.NewTracerProvider(), log.NewNullLogger(), nil)
}

// Start overrides the underlying tracer method to include the tracer metadata.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(t.metadata...))
	return t.Tracer.Start(ctx, spanName, opts...)
}

// TraceNavigation starts the navigation span of sessionID, ending the
// previous one. The span lives until the next navigation or EndSession.
func (t *Tracer) TraceNavigation(ctx context.Context, sessionID, uri string) (context.Context, trace.Span) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if prev := t.liveSpans[sessionID]; prev != nil {
		prev.End()
	}
	// Navigation spans are roots, the span of the load itself is a child.
	navCtx, span := t.Start(ctx, "navigation",
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("url.full", uri)))
	t.liveSpans[sessionID] = span

	t.logger.Debugf("Tracer:TraceNavigation", "sessionID:%s traceID:%s uri:%q",
		sessionID, GetTraceID(span.SpanContext()), uri)

	return t.startAPICall(navCtx, sessionID, "driver.load_uri")
}

// TraceAPICall starts the span of an operation of sessionID, as a child
// of its navigation span when there is one, or else of ctx's span. The
// caller ends the span, e.g. with End.
func (t *Tracer) TraceAPICall(ctx context.Context, sessionID, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if nav := t.liveSpans[sessionID]; nav != nil {
		ctx = trace.ContextWithSpan(ctx, nav)
	}
	return t.startAPICall(ctx, sessionID, spanName, opts...)
}

func (t *Tracer) startAPICall(ctx context.Context, sessionID, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(attribute.String("uidriver.session.id", sessionID)))
	sctx, span := t.Start(ctx, spanName, opts...)

	return sctx, &SpanLogger{Span: span, logger: t.logger, spanName: spanName}
}

// AddEvent adds an event to the navigation span of sessionID. It is
// ignored when the session has not navigated.
func (t *Tracer) AddEvent(sessionID, name string, attrs ...attribute.KeyValue) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	nav := t.liveSpans[sessionID]
	if nav == nil {
		t.logger.Debugf("Tracer:AddEvent", "no navigation of session %s, skipping event %q", sessionID, name)
		return
	}
	nav.AddEvent(name, trace.WithAttributes(attrs...))
}

// EndSession ends the navigation span of sessionID, if any.
func (t *Tracer) EndSession(sessionID string) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if nav := t.liveSpans[sessionID]; nav != nil {
		nav.End()
		delete(t.liveSpans, sessionID)
	}
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetTraceID returns the trace ID of spanCtx, or "" if it has none.
func GetTraceID(spanCtx trace.SpanContext) string {
	if spanCtx.HasTraceID() {
		return spanCtx.TraceID().String()
	}
	return ""
}

func buildMetadataAttributes(metadata map[string]string) []attribute.KeyValue {
	meta := make([]attribute.KeyValue, 0, len(metadata))
	for mk, mv := range metadata {
		meta = append(meta, attribute.String(mk, mv))
	}

	return meta
}

// SpanLogger is a Span that logs its status changes and end.
type SpanLogger struct {
	trace.Span
	logger   *log.Logger
	spanName string
}

// SetStatus logs the status before setting it.
func (s *SpanLogger) SetStatus(code codes.Code, description string) {
	s.logger.Debugf("SpanLogger:SetStatus", "spanName:%q traceID:%q code:%q description:%q",
		s.spanName, GetTraceID(s.SpanContext()), code, description)
	s.Span.SetStatus(code, description)
}

// End logs before ending the span.
func (s *SpanLogger) End(options ...trace.SpanEndOption) {
	s.logger.Debugf("SpanLogger:End", "spanName:%q traceID:%q", s.spanName, GetTraceID(s.SpanContext()))
	s.Span.End(options...)
}
