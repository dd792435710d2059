// Package metrics exports import progress as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

const namespace = "catalog_import"

// Observer implements core.Observer.
type Observer struct {
	rows          *prometheus.CounterVec
	entities      *prometheus.CounterVec
	stockItems    prometheus.Counter
	bunchDuration prometheus.Histogram
	runs          *prometheus.CounterVec
	rowErrors     *prometheus.CounterVec
}

// NewObserver registers the import metrics with reg.
func NewObserver(reg prometheus.Registerer) *Observer {
	f := promauto.With(reg)
	return &Observer{
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows read from import files by outcome.",
		}, []string{"result"}),
		entities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Product entities written by operation.",
		}, []string{"operation"}),
		stockItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_items_total",
			Help:      "Stock items saved.",
		}),
		bunchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bunch_duration_seconds",
			Help:      "Time taken to validate and save one bunch.",
			Buckets: []float64{
				0.01, 0.05,
				0.1, 0.25, 0.5,
				1, 2.5, 5, 10, 30,
			},
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished import runs by outcome.",
		}, []string{"result"}),
		rowErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_errors_total",
			Help:      "Row errors reported by finished runs, by kind.",
		}, []string{"kind"}),
	}
}

// BunchSaved records the rows and entities of a saved bunch.
func (o *Observer) BunchSaved(_ context.Context, s core.BunchSummary) {
	o.rows.WithLabelValues("accepted").Add(float64(s.Accepted))
	o.rows.WithLabelValues("rejected").Add(float64(s.Rejected))
	o.rows.WithLabelValues("skipped").Add(float64(s.Skipped))
	o.entities.WithLabelValues("created").Add(float64(s.EntitiesCreated))
	o.entities.WithLabelValues("updated").Add(float64(s.EntitiesUpdated))
	o.entities.WithLabelValues("deleted").Add(float64(s.EntitiesDeleted))
	o.stockItems.Add(float64(s.StockItems))
	o.bunchDuration.Observe(s.Duration.Seconds())
}

// ImportFinished records the outcome of a run.
func (o *Observer) ImportFinished(_ context.Context, r core.Report) {
	o.runs.WithLabelValues(outcome(r)).Inc()
	for kind, n := range r.ErrorsByKind() {
		o.rowErrors.WithLabelValues(string(kind)).Add(float64(n))
	}
}

func outcome(r core.Report) string {
	switch {
	case r.Fatal != "":
		return "failed"
	case r.Terminated:
		return "terminated"
	case r.CriticalErrors > 0:
		return "completed_with_errors"
	default:
		return "completed"
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
