// Package metrics provides Prometheus metrics for backup cycles.
//
// Usage:
//
//	metrics.RecordTrigger("timer", true)
//	metrics.RecordCycle("success", 12*time.Second)
//	metrics.SetState(models.StateArchiving)
package metrics

import (
	"strconv"
	"time"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "goworld_backup"

var (
	// CyclesTotal counts finished cycles by outcome (success, failure).
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of finished backup cycles",
		},
		[]string{"outcome"},
	)

	// TriggersTotal counts cycle triggers by source and whether a cycle started.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Total number of backup triggers, including ignored ones",
		},
		[]string{"source", "accepted"},
	)

	// ArchiveBytes is the size of the most recent archive.
	ArchiveBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_bytes",
			Help:      "Size of the most recently created archive in bytes",
		},
	)

	// ArchiveDuration tracks how long archive writing takes.
	ArchiveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_duration_seconds",
			Help:      "Duration of archive creation in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// RetentionDeletedTotal counts archives removed by the retention policy.
	RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Total number of archives deleted by retention",
		},
	)

	// RetentionFailuresTotal counts archives that could not be deleted.
	RetentionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_failures_total",
			Help:      "Total number of archive deletions that failed",
		},
	)

	// State is the current orchestrator state as its numeric value.
	State = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current orchestrator state (0 idle, 1 warning, 2 archiving, 3 cleanup)",
		},
	)
)

// RecordTrigger records a trigger from source.
func RecordTrigger(source string, accepted bool) {
	TriggersTotal.WithLabelValues(source, strconv.FormatBool(accepted)).Inc()
}

// RecordCycle records a finished cycle.
func RecordCycle(outcome string, archiveDuration time.Duration) {
	CyclesTotal.WithLabelValues(outcome).Inc()
	if archiveDuration > 0 {
		ArchiveDuration.Observe(archiveDuration.Seconds())
	}
}

// RecordArchive records the size of a new archive.
func RecordArchive(sizeBytes int64) {
	ArchiveBytes.Set(float64(sizeBytes))
}

// RecordCleanup records the outcome of a retention run.
func RecordCleanup(deleted, failed int) {
	RetentionDeletedTotal.Add(float64(deleted))
	RetentionFailuresTotal.Add(float64(failed))
}

// SetState publishes the orchestrator state.
func SetState(s models.State) {
	State.Set(float64(s))
}
