// Package metrics defines the Prometheus collectors of query execution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "featsql"

// Query outcomes used as the "outcome" label.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the collectors of one engine.
type Metrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryTotal    *prometheus.CounterVec

	// SQLDuration measures single meta and value statements.
	SQLDuration *prometheus.HistogramVec

	RowsTotal     *prometheus.CounterVec
	FeaturesTotal *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "duration_seconds",
				Help:      "Histogram of feature query latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type", "outcome"},
		),
		QueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "total",
				Help:      "Total number of feature queries",
			},
			[]string{"type", "outcome"},
		),
		SQLDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sql",
				Name:      "duration_seconds",
				Help:      "Histogram of SQL statement latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type", "kind"},
		),
		RowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sql",
				Name:      "rows_total",
				Help:      "Total number of value rows read, by table",
			},
			[]string{"type", "table"},
		),
		FeaturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "features_returned_total",
				Help:      "Total number of features returned",
			},
			[]string{"type"},
		),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Rendered SQL cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Rendered SQL cache misses",
		}),
	}
}

// ObserveQuery records one finished feature query.
func (m *Metrics) ObserveQuery(typeName string, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	m.QueryTotal.WithLabelValues(typeName, outcome).Inc()
	m.QueryDuration.WithLabelValues(typeName, outcome).Observe(elapsed.Seconds())
}

// ObserveSQL records one SQL statement of kind "meta" or "values".
func (m *Metrics) ObserveSQL(typeName, kind string, elapsed time.Duration) {
	m.SQLDuration.WithLabelValues(typeName, kind).Observe(elapsed.Seconds())
}

// Handler serves the metrics of gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
