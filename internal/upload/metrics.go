package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK        = "ok"
	resultError     = "error"
	resultOversize  = "oversize"
	resultCancelled = "cancelled"
)

type storeMetrics struct {
	created          prometheus.Counter
	appends          *prometheus.CounterVec
	bytesWritten     prometheus.Counter
	assemblies       prometheus.Counter
	assemblyDuration prometheus.Histogram
	swept            prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	factory := promauto.With(reg)
	return &storeMetrics{
		created: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resumable",
			Subsystem: "store",
			Name:      "uploads_created_total",
			Help:      "Number of uploads created",
		}),
		appends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumable",
			Subsystem: "store",
			Name:      "appends_total",
			Help:      "Number of append calls by result",
		}, []string{"result"}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resumable",
			Subsystem: "store",
			Name:      "bytes_written_total",
			Help:      "Bytes persisted into chunk parts",
		}),
		assemblies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resumable",
			Subsystem: "store",
			Name:      "assemblies_total",
			Help:      "Number of assemblies built from parts",
		}),
		assemblyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resumable",
			Subsystem: "store",
			Name:      "assembly_duration_seconds",
			Help:      "Time spent concatenating parts",
			Buckets:   prometheus.DefBuckets,
		}),
		swept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resumable",
			Subsystem: "store",
			Name:      "swept_total",
			Help:      "Number of expired uploads removed",
		}),
	}
}
