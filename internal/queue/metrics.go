package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ledger activity.
type Metrics struct {
	JobsAdmitted  *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics registers the ledger collectors once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			JobsAdmitted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vectoradmin_jobs_admitted_total",
				Help: "Jobs admitted to the ledger",
			}, []string{"task_name"}),
			JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vectoradmin_jobs_completed_total",
				Help: "Jobs finished in the complete state",
			}, []string{"task_name"}),
			JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vectoradmin_jobs_failed_total",
				Help: "Jobs finished in the failed state",
			}, []string{"task_name"}),
		}
	})
	return metricsInstance
}
