package loader

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records load outcomes.
//
// Metrics:
//   - ctxload_loader_loads_total: loads by outcome
//   - ctxload_loader_tokens_loaded: tokens per successful load
//   - ctxload_loader_resources_total: resources by tier and outcome
//   - ctxload_loader_utilization_ratio: utilization of the last successful load
//
// A nil *Metrics records nothing.
type Metrics struct {
	loadsTotal     *prometheus.CounterVec
	tokensLoaded   prometheus.Histogram
	resourcesTotal *prometheus.CounterVec
	utilization    prometheus.Gauge
}

// NewMetrics creates and registers loader metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctxload",
				Subsystem: "loader",
				Name:      "loads_total",
				Help:      "Total number of budgeted loads by outcome",
			},
			[]string{"outcome"},
		),

		tokensLoaded: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ctxload",
				Subsystem: "loader",
				Name:      "tokens_loaded",
				Help:      "Tokens included per successful load",
				Buckets:   prometheus.ExponentialBuckets(1000, 2, 8), // 1k to 128k
			},
		),

		resourcesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctxload",
				Subsystem: "loader",
				Name:      "resources_total",
				Help:      "Resources processed by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),

		utilization: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ctxload",
				Subsystem: "loader",
				Name:      "utilization_ratio",
				Help:      "Budget utilization of the most recent successful load",
			},
		),
	}

	registry.MustRegister(
		m.loadsTotal,
		m.tokensLoaded,
		m.resourcesTotal,
		m.utilization,
	)

	return m
}

func (m *Metrics) observeReport(r *Report) {
	if m == nil {
		return
	}

	m.loadsTotal.WithLabelValues("success").Inc()
	m.tokensLoaded.Observe(float64(r.TotalTokens))
	if r.Budget > 0 {
		m.utilization.Set(float64(r.TotalTokens) / float64(r.Budget))
	} else {
		m.utilization.Set(0)
	}

	for _, lr := range r.LoadedResources {
		outcome := "loaded"
		if lr.Truncated {
			outcome = "truncated"
		}
		m.resourcesTotal.WithLabelValues(lr.Tier.String(), outcome).Inc()
	}
	m.resourcesTotal.WithLabelValues("best_effort", "skipped").Add(float64(len(r.SkippedLocations)))
}

func (m *Metrics) observeFailure(err error) {
	if m == nil {
		return
	}

	outcome := "error"
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		outcome = "budget_exceeded"
	case errors.Is(err, ErrResourceUnavailable):
		outcome = "resource_unavailable"
	}
	m.loadsTotal.WithLabelValues(outcome).Inc()
}
