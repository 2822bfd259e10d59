// Package monitoring - metrics.go exports context manager metrics to Prometheus.
//
// DESIGN: Metrics owns its registry instead of using the default one so
// several managers in one process (and parallel tests) do not collide:
//   - compactions_total{outcome}:  success, noop, failed, canceled
//   - compaction_tokens_saved:     tokensBefore - tokensAfter per success
//   - sanitizer_fixes_total{type}: one per applied fix
//   - context_usage_ratio:         last observed usage
//   - context_threshold_level{level}: 1 for the current level, 0 otherwise
package monitoring

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/mhismail3/tron-sub010/internal/contextmgr"
	"github.com/mhismail3/tron-sub010/internal/sanitize"
)

const namespace = "tron"

var thresholdLevels = []contextmgr.ThresholdLevel{
	contextmgr.LevelNormal,
	contextmgr.LevelWarning,
	contextmgr.LevelAlert,
	contextmgr.LevelCritical,
	contextmgr.LevelExceeded,
}

// Metrics collects context manager and sanitizer metrics.
type Metrics struct {
	registry    *prometheus.Registry
	compactions *prometheus.CounterVec
	tokensSaved prometheus.Histogram
	fixes       *prometheus.CounterVec
	usage       prometheus.Gauge
	level       *prometheus.GaugeVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Compaction attempts by outcome.",
		}, []string{"outcome"}),
		tokensSaved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compaction_tokens_saved",
			Help:      "Estimated tokens removed by a successful compaction.",
			Buckets:   prometheus.ExponentialBuckets(500, 2, 10),
		}),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sanitizer_fixes_total",
			Help:      "Fixes applied by the message sanitizer by type.",
		}, []string{"type"}),
		usage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_usage_ratio",
			Help:      "Last observed context usage as a fraction of the model window.",
		}),
		level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_threshold_level",
			Help:      "1 for the current threshold level, 0 for the others.",
		}, []string{"level"}),
	}
	m.registry.MustRegister(m.compactions, m.tokensSaved, m.fixes, m.usage, m.level)
	return m
}

// RecordCompaction implements contextmgr.MetricsRecorder.
func (m *Metrics) RecordCompaction(outcome string, tokensBefore, tokensAfter int) {
	m.compactions.WithLabelValues(outcome).Inc()
	if outcome == contextmgr.OutcomeSuccess {
		m.tokensSaved.Observe(float64(tokensBefore - tokensAfter))
	}
}

// RecordThreshold implements contextmgr.MetricsRecorder.
func (m *Metrics) RecordThreshold(level string, usage float64) {
	m.usage.Set(usage)
	for _, l := range thresholdLevels {
		v := 0.0
		if string(l) == level {
			v = 1
		}
		m.level.WithLabelValues(string(l)).Set(v)
	}
}

// RecordFix implements sanitize.FixRecorder.
func (m *Metrics) RecordFix(f sanitize.Fix) {
	m.fixes.WithLabelValues(string(f.Type)).Inc()
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteText writes the current metrics in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ contextmgr.MetricsRecorder = (*Metrics)(nil)
	_ sanitize.FixRecorder       = (*Metrics)(nil)
)
