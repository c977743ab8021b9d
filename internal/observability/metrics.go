// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Discovery metrics
	PairsDiscovered prometheus.Counter
	PairsFiltered   prometheus.Counter
	DuplicateEvents prometheus.Counter

	// Analysis metrics
	AnalysesStarted   prometheus.Counter
	AnalysesApproved  prometheus.Counter
	AnalysesRejected  *prometheus.CounterVec
	TokensBlacklisted prometheus.Counter

	// Execution metrics
	BuysSubmitted prometheus.Counter
	BuysSucceeded prometheus.Counter
	BuysFailed    prometheus.Counter
	SellsExecuted prometheus.Counter
	SellsFailed   prometheus.Counter

	// State gauges
	BlacklistSize prometheus.Gauge
	InFlight      prometheus.Gauge
	RecentTrades  prometheus.Gauge
}

// New creates a Metrics instance registered into a private registry so
// repeated construction in tests never double-registers.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "harrier"
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		PairsDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "pairs_discovered_total",
			Help:      "Total number of pair-creation events received",
		}),
		PairsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "pairs_filtered_total",
			Help:      "Total number of pairs skipped because neither side is the base asset",
		}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "duplicate_events_total",
			Help:      "Total number of discovery events dropped as duplicates",
		}),

		AnalysesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "started_total",
			Help:      "Total number of token analyses started",
		}),
		AnalysesApproved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "approved_total",
			Help:      "Total number of candidates approved for a buy",
		}),
		AnalysesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "rejected_total",
			Help:      "Total number of candidates rejected by reason",
		}, []string{"reason"}),
		TokensBlacklisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "blacklisted_total",
			Help:      "Total number of tokens blacklisted as scam-level signals",
		}),

		BuysSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "buys_submitted_total",
			Help:      "Total number of buy transactions submitted",
		}),
		BuysSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "buys_succeeded_total",
			Help:      "Total number of confirmed successful buys",
		}),
		BuysFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "buys_failed_total",
			Help:      "Total number of failed or reverted buys",
		}),
		SellsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "sells_executed_total",
			Help:      "Total number of successful scheduled sells",
		}),
		SellsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "sells_failed_total",
			Help:      "Total number of failed scheduled sells",
		}),

		BlacklistSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "blacklist_size",
			Help:      "Current number of blacklisted token addresses",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "in_flight",
			Help:      "Current number of tokens with an analysis or execution in flight",
		}),
		RecentTrades: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "recent_trades",
			Help:      "Number of ledger entries inside the rolling one-hour window",
		}),
	}
}

// Handler returns the HTTP handler serving this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
