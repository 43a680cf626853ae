// Package k6ext records driver operations as k6 metric samples.
package k6ext

import (
	"context"
	"sort"
	"sync"
	"time"

	k6metrics "go.k6.io/k6/metrics"
)

// Driver operation names used as the "op" tag.
const (
	OpFind      = "find"
	OpNotExists = "not_exists"
	OpClick     = "click"
	OpLoadURI   = "load_uri"
	OpDialog    = "dialog"
)

// Outcomes used as the "outcome" tag.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// CustomMetrics are the custom k6 metrics used by uidriver.
type CustomMetrics struct {
	FindDuration       *k6metrics.Metric
	ClickDuration      *k6metrics.Metric
	NavigationDuration *k6metrics.Metric
	DialogDuration     *k6metrics.Metric
	Timeouts           *k6metrics.Metric
}

// RegisterCustomMetrics creates and registers our custom metrics with the
// registry and returns our internal struct pointer.
func RegisterCustomMetrics(registry *k6metrics.Registry) *CustomMetrics {
	return &CustomMetrics{
		FindDuration: registry.MustNewMetric(
			"uidriver_find_duration", k6metrics.Trend, k6metrics.Time),
		ClickDuration: registry.MustNewMetric(
			"uidriver_click_duration", k6metrics.Trend, k6metrics.Time),
		NavigationDuration: registry.MustNewMetric(
			"uidriver_navigation_duration", k6metrics.Trend, k6metrics.Time),
		DialogDuration: registry.MustNewMetric(
			"uidriver_dialog_duration", k6metrics.Trend, k6metrics.Time),
		Timeouts: registry.MustNewMetric(
			"uidriver_timeouts", k6metrics.Counter),
	}
}

func (m *CustomMetrics) durationMetric(op string) *k6metrics.Metric {
	switch op {
	case OpClick:
		return m.ClickDuration
	case OpLoadURI:
		return m.NavigationDuration
	case OpDialog:
		return m.DialogDuration
	default:
		return m.FindDuration
	}
}

// Recorder turns driver operations into samples pushed to an output
// channel.
type Recorder struct {
	registry *k6metrics.Registry
	metrics  *CustomMetrics
	output   chan<- k6metrics.SampleContainer
}

// NewRecorder registers the custom metrics in registry and returns a
// Recorder pushing to output.
func NewRecorder(registry *k6metrics.Registry, output chan<- k6metrics.SampleContainer) *Recorder {
	return &Recorder{
		registry: registry,
		metrics:  RegisterCustomMetrics(registry),
		output:   output,
	}
}

// Metrics returns the metrics the recorder pushes samples of.
func (r *Recorder) Metrics() *CustomMetrics {
	return r.metrics
}

// Observe records the duration of one driver operation, and a timeout
// when it timed out. It gives up if ctx is done before the samples are
// taken.
func (r *Recorder) Observe(ctx context.Context, op string, elapsed time.Duration, outcome string) {
	now := time.Now()
	tags := r.registry.RootTagSet().With("op", op).With("outcome", outcome)

	samples := k6metrics.Samples{
		{
			TimeSeries: k6metrics.TimeSeries{Metric: r.metrics.durationMetric(op), Tags: tags},
			Time:       now,
			Value:      k6metrics.D(elapsed),
		},
	}
	if outcome == OutcomeTimeout {
		samples = append(samples, k6metrics.Sample{
			TimeSeries: k6metrics.TimeSeries{Metric: r.metrics.Timeouts, Tags: tags},
			Time:       now,
			Value:      1,
		})
	}

	PushIfNotDone(ctx, r.output, samples)
}

// PushIfNotDone is a helper function to push a sample to a channel if the
// context is not done. It returns true if the sample was pushed, false if the
// context was done.
func PushIfNotDone(ctx context.Context, output chan<- k6metrics.SampleContainer, sample k6metrics.SampleContainer) bool {
	select {
	case <-ctx.Done():
		return false
	case output <- sample:
		return true
	}
}

// Summary aggregates samples per metric in k6 sinks.
type Summary struct {
	mu    sync.Mutex
	sinks map[*k6metrics.Metric]k6metrics.Sink
	start time.Time
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{
		sinks: make(map[*k6metrics.Metric]k6metrics.Sink),
		start: time.Now(),
	}
}

// Collect adds the samples received from input until it is closed or ctx
// is done.
func (s *Summary) Collect(ctx context.Context, input <-chan k6metrics.SampleContainer) {
	for {
		select {
		case <-ctx.Done():
			return
		case sc, ok := <-input:
			if !ok {
				return
			}
			s.Add(sc)
		}
	}
}

// Add adds the samples of sc.
func (s *Summary) Add(sc k6metrics.SampleContainer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range sc.GetSamples() {
		m := sample.Metric
		sink, ok := s.sinks[m]
		if !ok {
			sink = k6metrics.NewSink(m.Type)
			s.sinks[m] = sink
		}
		sink.Add(sample)
	}
}

// MetricSummary is the formatted sink of one metric.
type MetricSummary struct {
	Name   string
	Values map[string]float64
}

// Metrics returns the formatted sinks sorted by metric name.
func (s *Summary) Metrics() []MetricSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.start)
	out := make([]MetricSummary, 0, len(s.sinks))
	for m, sink := range s.sinks {
		out = append(out, MetricSummary{Name: m.Name, Values: sink.Format(elapsed)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
