package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks refresh pipeline outcomes.
type Metrics struct {
	RunsStarted      prometheus.Counter
	RunsFailed       prometheus.Counter
	RunsRejectedBusy prometheus.Counter
	RowsWritten      prometheus.Counter
	PublishSuccesses prometheus.Counter
	PublishFailures  prometheus.Counter
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refresher_runs_started_total",
			Help: "Number of refresh runs started.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refresher_runs_failed_total",
			Help: "Number of refresh runs that ended in a failed state.",
		}),
		RunsRejectedBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refresher_runs_rejected_busy_total",
			Help: "Number of refresh requests rejected because a run was in progress.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refresher_rows_written_total",
			Help: "Number of rows written to the local extract.",
		}),
		PublishSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refresher_publish_success_total",
			Help: "Number of successful datasource publishes.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refresher_publish_failure_total",
			Help: "Number of failed datasource publishes.",
		}),
	}
	reg.MustRegister(
		m.RunsStarted,
		m.RunsFailed,
		m.RunsRejectedBusy,
		m.RowsWritten,
		m.PublishSuccesses,
		m.PublishFailures,
	)
	return m
}
