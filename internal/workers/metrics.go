package workers

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks workflow activity.
type Metrics struct {
	DocumentsProcessed *prometheus.CounterVec
	VectorsUpserted    *prometheus.CounterVec
	DocumentsSkipped   *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics registers the workflow collectors once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			DocumentsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vectoradmin_documents_processed_total",
				Help: "Documents ingested or cloned per provider",
			}, []string{"provider"}),
			VectorsUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vectoradmin_vectors_upserted_total",
				Help: "Vectors written to providers",
			}, []string{"provider"}),
			DocumentsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vectoradmin_documents_skipped_total",
				Help: "Documents skipped during workflows",
			}, []string{"provider", "reason"}),
		}
	})
	return metricsInstance
}
