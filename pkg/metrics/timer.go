package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed wall-clock time from construction to whenever
// Duration, ObserveDuration, or ObserveDurationVec is called — possibly
// more than once, since nothing about it is consumed on read.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer running now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time into one label combination
// of a HistogramVec.
func (t *Timer) ObserveDurationVec(histogramVec *prometheus.HistogramVec, labelValues ...string) {
	histogramVec.WithLabelValues(labelValues...).Observe(t.Duration().Seconds())
}
