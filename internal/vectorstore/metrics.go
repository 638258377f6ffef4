// Package vectorstore provides Prometheus metrics for store operations.
package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: backend (memory, chromem, qdrant), operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemactx",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// OperationDuration tracks how long store operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "schemactx",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// DocumentsWritten counts documents successfully upserted.
	DocumentsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemactx",
			Subsystem: "vectorstore",
			Name:      "documents_written_total",
			Help:      "Total number of documents written by upsert",
		},
		[]string{"backend"},
	)

	// DocumentsRejected counts documents that failed upsert.
	DocumentsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemactx",
			Subsystem: "vectorstore",
			Name:      "documents_rejected_total",
			Help:      "Total number of documents rejected or failed during upsert",
		},
		[]string{"backend"},
	)
)

// observe records the outcome and latency of one store operation.
func observe(backend, operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, operation, result).Inc()
	OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// observeUpsert records per-document upsert counts.
func observeUpsert(backend string, written, failed int) {
	if written > 0 {
		DocumentsWritten.WithLabelValues(backend).Add(float64(written))
	}
	if failed > 0 {
		DocumentsRejected.WithLabelValues(backend).Add(float64(failed))
	}
}
