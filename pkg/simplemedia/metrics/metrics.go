package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Media metrics
var (
	// Upload counters
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simple_media",
			Name:      "uploads_total",
			Help:      "Total media uploads by media type and outcome",
		},
		[]string{"media_type", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simple_media",
			Name:      "upload_bytes_total",
			Help:      "Total bytes of successful uploads",
		},
		[]string{"media_type"},
	)

	// Object store operations
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simple_media",
			Name:      "store_operations_total",
			Help:      "Total object store operations",
		},
		[]string{"operation", "status"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simple_media",
			Name:      "store_duration_seconds",
			Help:      "Object store operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	// Orphan sweeps
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simple_media",
			Subsystem: "reconciler",
			Name:      "sweeps_total",
			Help:      "Total orphan sweeps by outcome",
		},
		[]string{"status"},
	)

	OrphansDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simple_media",
			Subsystem: "reconciler",
			Name:      "orphans_deleted_total",
			Help:      "Total orphaned media deleted",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "simple_media",
			Subsystem: "reconciler",
			Name:      "sweep_duration_seconds",
			Help:      "Orphan sweep duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 120},
		},
	)
)

// RecordUpload records an upload attempt
func RecordUpload(mediaType, status string, bytes int64) {
	UploadsTotal.WithLabelValues(mediaType, status).Inc()
	if status == "success" {
		UploadBytesTotal.WithLabelValues(mediaType).Add(float64(bytes))
	}
}

// RecordStoreOperation records an object store call
func RecordStoreOperation(operation, status string, durationSec float64) {
	StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	StoreDuration.WithLabelValues(operation).Observe(durationSec)
}

// RecordSweep records a finished orphan sweep
func RecordSweep(status string, deleted int, durationSec float64) {
	SweepsTotal.WithLabelValues(status).Inc()
	OrphansDeletedTotal.Add(float64(deleted))
	SweepDuration.Observe(durationSec)
}
