// Package metrics holds the prometheus collectors metalens records during a
// session: analysis outcomes and latency, analysis cache hits, and exports.
// The registry is private to the process; the CLI dumps it in text
// exposition format on request.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Analysis outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeTooLarge  = "too_large"
	OutcomeTransport = "transport"
	OutcomeService   = "service"
	OutcomeMalformed = "malformed"
	OutcomeStale     = "stale"
)

// Export kind label values.
const (
	ExportBinary  = "binary"
	ExportSidecar = "sidecar"
)

// Metrics groups the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	AnalysisRequests *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	AnalysisBytes    prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	Exports          *prometheus.CounterVec
}

// New creates collectors registered with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AnalysisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metalens_analysis_requests_total",
			Help: "Analysis requests by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "metalens_analysis_duration_seconds",
			Help:    "Latency of calls to the analysis service.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		AnalysisBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "metalens_analysis_payload_bytes_total",
			Help: "Raw bytes sent to the analysis service.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "metalens_analysis_cache_hits_total",
			Help: "Analysis results served from the session cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "metalens_analysis_cache_misses_total",
			Help: "Analysis lookups that missed the session cache.",
		}),
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metalens_exports_total",
			Help: "Artifacts written by kind.",
		}, []string{"kind"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText writes every gathered metric family in text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
