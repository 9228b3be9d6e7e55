// Package metrics holds the Prometheus collectors for the storage subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups all storage collectors. A nil *Metrics is valid and records
// nothing, so components can take it as an optional dependency.
type Metrics struct {
	BlobsWritten       *prometheus.CounterVec // mediastore_blobs_written_total{kind}
	BlobBytesWritten   *prometheus.CounterVec // mediastore_blob_bytes_written_total{kind}
	DirectoriesCreated *prometheus.CounterVec // mediastore_directories_created_total{kind}
	StructureFull      *prometheus.CounterVec // mediastore_structure_full_total{kind}
	IntegrityAlarms    *prometheus.CounterVec // mediastore_integrity_alarms_total{kind}

	UploadOutcomes  *prometheus.CounterVec // mediastore_upload_outcomes_total{outcome}
	BatchRollbacks  prometheus.Counter
	CleanupFailures *prometheus.CounterVec // mediastore_cleanup_failures_total{phase}
	FilesRemoved    *prometheus.CounterVec // mediastore_files_removed_total{phase}
}

// New registers every collector with reg. A nil reg uses a fresh private
// registry so repeated construction in tests never collides.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		BlobsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_blobs_written_total",
			Help: "Blob payloads renamed into a media tree",
		}, []string{"kind"}),
		BlobBytesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_blob_bytes_written_total",
			Help: "Primary payload bytes written into a media tree",
		}, []string{"kind"}),
		DirectoriesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_directories_created_total",
			Help: "Numbered directories created by the allocator",
		}, []string{"kind"}),
		StructureFull: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_structure_full_total",
			Help: "Allocation attempts that found the tree exhausted",
		}, []string{"kind"}),
		IntegrityAlarms: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_integrity_alarms_total",
			Help: "Directories found over capacity or otherwise inconsistent",
		}, []string{"kind"}),
		UploadOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_upload_outcomes_total",
			Help: "Batch items by outcome",
		}, []string{"outcome"}),
		BatchRollbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "mediastore_batch_rollbacks_total",
			Help: "Batches aborted and compensated",
		}),
		CleanupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_cleanup_failures_total",
			Help: "Files that could not be removed during undo or post-commit cleanup",
		}, []string{"phase"}),
		FilesRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediastore_files_removed_total",
			Help: "Files removed during undo, post-commit cleanup or sweep",
		}, []string{"phase"}),
	}
}

func (m *Metrics) BlobWritten(kind string, size int64) {
	if m == nil {
		return
	}
	m.BlobsWritten.WithLabelValues(kind).Inc()
	m.BlobBytesWritten.WithLabelValues(kind).Add(float64(size))
}

func (m *Metrics) DirectoryCreated(kind string) {
	if m == nil {
		return
	}
	m.DirectoriesCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) StructureExhausted(kind string) {
	if m == nil {
		return
	}
	m.StructureFull.WithLabelValues(kind).Inc()
}

func (m *Metrics) IntegrityAlarm(kind string) {
	if m == nil {
		return
	}
	m.IntegrityAlarms.WithLabelValues(kind).Inc()
}

func (m *Metrics) UploadOutcome(outcome string) {
	if m == nil {
		return
	}
	m.UploadOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchRolledBack() {
	if m == nil {
		return
	}
	m.BatchRollbacks.Inc()
}

// FileRemoved records one removal attempt for phase (undo, superseded,
// deleted, sweep).
func (m *Metrics) FileRemoved(phase string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CleanupFailures.WithLabelValues(phase).Inc()
		return
	}
	m.FilesRemoved.WithLabelValues(phase).Inc()
}
