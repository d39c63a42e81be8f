// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReportsRendered counts PDF report cards by variant ("comprehensive" or "subject").
	ReportsRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "report_cards_rendered_total",
		Help: "Number of PDF report cards rendered.",
	}, []string{"variant"})

	// RecordsAppended counts records added to sessions by source ("form", "csv" or "ws").
	RecordsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "records_appended_total",
		Help: "Number of activity records appended to sessions.",
	}, []string{"source"})

	RecordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "records_rejected_total",
		Help: "Number of uploaded rows rejected during import.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_sessions",
		Help: "Number of open dashboard sessions on this instance.",
	})
)
