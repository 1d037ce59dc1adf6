package models

import (
	"errors"
	"time"
)

// ErrIOFailure marks archive write, directory listing and file deletion failures.
var ErrIOFailure = errors.New("io failure")

// ArchiveExt is the suffix shared by every produced archive.
const ArchiveExt = ".zip"

// StoreSelection pairs a source directory with its root name inside the archive.
type StoreSelection struct {
	SourcePath string
	RootName   string
}

// ArchiveResult holds the result of a successful archive run.
type ArchiveResult struct {
	Path         string
	Name         string
	SizeBytes    int64
	FilesWritten int
	Stores       []string // selections that existed and were written
	Duration     time.Duration
}

// CleanupResult holds the result of a retention run.
type CleanupResult struct {
	Deleted  []string
	Kept     int
	Failures map[string]error // per-file deletion failures
	Duration time.Duration
}

// State is the orchestrator state.
type State int32

// Orchestrator states.
const (
	StateIdle State = iota
	StateWarning
	StateArchiving
	StateCleanup
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarning:
		return "warning"
	case StateArchiving:
		return "archiving"
	case StateCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// CycleSummary describes the most recent completed cycle.
type CycleSummary struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Success     bool      `json:"success"`
	ArchiveName string    `json:"archive_name,omitempty"`
	Deleted     int       `json:"deleted"`
	Error       string    `json:"error,omitempty"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State     string        `json:"state"`
	Cycles    int           `json:"cycles"`
	LastCycle *CycleSummary `json:"last_cycle,omitempty"`
}
