package driver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/trace"
)

func TestDriverTracing(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := &countingFactory{}
	opts := NewOptions()
	opts.Timeout = 50 * time.Millisecond
	opts.PollInterval = 10 * time.Millisecond
	h := NewHarness(f, opts, log.NewNullLogger())
	h.SetTracer(trace.NewTracer(tp, log.NewNullLogger(), nil))

	ctx := context.Background()
	d, err := h.GetDriver(ctx)
	require.NoError(t, err)
	s := f.sessions[0]
	s.query = func(xpath, _ string, _ int) ([]api.Element, error) {
		if strings.Contains(xpath, "File") {
			return visible("File"), nil
		}
		return nil, nil
	}
	s.dialogAfter = 0

	require.NoError(t, d.LoadURI(ctx, "http://localhost/index.html"))
	require.NoError(t, d.ClickText(ctx, "File"))
	_, err = d.FindByText(ctx, "Sounds")
	require.Error(t, err)
	require.NoError(t, d.AcceptAlert(ctx))
	require.NoError(t, h.Quit(ctx))

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, span := range sr.Ended() {
		byName[span.Name()] = span
	}
	require.Len(t, byName, 5)

	nav := byName["navigation"]
	require.NotNil(t, nav)
	require.Len(t, nav.Events(), 1)
	assert.Equal(t, "dialog", nav.Events()[0].Name)
	assert.Contains(t, nav.Events()[0].Attributes, attribute.Bool("accepted", true))

	for _, name := range []string{"driver.load_uri", "driver.click", "driver.find", "driver.dialog"} {
		span := byName[name]
		require.NotNil(t, span, name)
		assert.Equal(t, nav.SpanContext().SpanID(), span.Parent().SpanID(), name)
		assert.Contains(t, span.Attributes(), attribute.String("uidriver.session.id", d.ID()), name)
	}
	assert.Contains(t, byName["driver.click"].Attributes(), attribute.String("uidriver.locator", `text "File"`))
	assert.Equal(t, codes.Error, byName["driver.find"].Status().Code)
	assert.Equal(t, codes.Unset, byName["driver.click"].Status().Code)
}
