package k6ext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	k6metrics "go.k6.io/k6/metrics"
)

func TestRecorderObserve(t *testing.T) {
	t.Parallel()

	out := make(chan k6metrics.SampleContainer, 10)
	r := NewRecorder(k6metrics.NewRegistry(), out)

	ctx := context.Background()
	r.Observe(ctx, OpClick, 250*time.Millisecond, OutcomeOK)
	r.Observe(ctx, OpFind, 5*time.Second, OutcomeTimeout)

	require.Len(t, out, 2)

	click := (<-out).GetSamples()
	require.Len(t, click, 1)
	assert.Equal(t, "uidriver_click_duration", click[0].Metric.Name)
	assert.Equal(t, float64(250), click[0].Value)
	op, ok := click[0].Tags.Get("op")
	require.True(t, ok)
	assert.Equal(t, OpClick, op)

	find := (<-out).GetSamples()
	require.Len(t, find, 2)
	assert.Equal(t, "uidriver_find_duration", find[0].Metric.Name)
	assert.Equal(t, "uidriver_timeouts", find[1].Metric.Name)
	outcome, ok := find[1].Tags.Get("outcome")
	require.True(t, ok)
	assert.Equal(t, OutcomeTimeout, outcome)
}

func TestRecorderObserveDoneContext(t *testing.T) {
	t.Parallel()

	out := make(chan k6metrics.SampleContainer)
	r := NewRecorder(k6metrics.NewRegistry(), out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Must not block on the unbuffered channel.
	r.Observe(ctx, OpLoadURI, time.Second, OutcomeError)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	out := make(chan k6metrics.SampleContainer, 10)
	r := NewRecorder(k6metrics.NewRegistry(), out)

	ctx := context.Background()
	r.Observe(ctx, OpFind, 100*time.Millisecond, OutcomeOK)
	r.Observe(ctx, OpFind, 300*time.Millisecond, OutcomeOK)
	r.Observe(ctx, OpNotExists, time.Second, OutcomeTimeout)
	close(out)

	s := NewSummary()
	s.Collect(ctx, out)

	ms := s.Metrics()
	require.Len(t, ms, 2)
	assert.Equal(t, "uidriver_find_duration", ms[0].Name)
	assert.InDelta(t, 1000, ms[0].Values["max"], 0.001)
	assert.InDelta(t, 100, ms[0].Values["min"], 0.001)
	assert.Equal(t, "uidriver_timeouts", ms[1].Name)
	assert.InDelta(t, 1, ms[1].Values["count"], 0.001)
}
