package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personhub_ingestion_batches_total",
		Help: "Batches handed to the store, by result",
	}, []string{"result"})

	persistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personhub_ingestion_persisted_total",
		Help: "People written to the store",
	})

	requeuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personhub_ingestion_requeued_total",
		Help: "Entries put back after a failed batch",
	})

	polledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personhub_ingestion_polled_total",
		Help: "Entries read from the stream, including reclaimed ones",
	})

	pollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personhub_ingestion_poll_errors_total",
		Help: "Failed stream polls",
	})

	ackFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personhub_ingestion_ack_failures_total",
		Help: "Ack calls that failed and left entries pending",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "personhub_ingestion_batch_size",
		Help:    "Entries per batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	batchDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "personhub_ingestion_batch_duration_ms",
		Help:    "Store latency per batch in milliseconds",
		Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	bufferLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "personhub_ingestion_buffer_length",
		Help: "Entries waiting in the in-process buffer",
	})
)
