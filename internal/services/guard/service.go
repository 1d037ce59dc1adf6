// Package guard pauses and resumes world persistence around an archive run.
package guard

import (
	"context"
	"sync"

	"github.com/fgeck/goworld-backup/internal/services/host"
	"github.com/rs/zerolog"
)

// Service defines the interface for persistence toggling.
// Every PauseAll on the way to archiving must be matched by exactly one ResumeAll.
type Service interface {
	PauseAll(ctx context.Context)
	ResumeAll(ctx context.Context)
}

// Impl implements the guard Service interface on top of a host.
type Impl struct {
	host   host.Service
	logger zerolog.Logger

	mu     sync.Mutex
	paused []string // stores touched by the last PauseAll, nil when none is outstanding
}

// New creates a new persistence guard.
func New(logger zerolog.Logger, hostSvc host.Service) *Impl {
	return &Impl{
		host:   hostSvc,
		logger: logger,
	}
}

// PauseAll disables persistence for every store the host knows and remembers that set.
func (s *Impl) PauseAll(ctx context.Context) {
	stores, err := s.host.ListDataStores(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("action", "pause").Msg("failed to list data stores")
		return
	}

	s.mu.Lock()
	s.paused = stores
	s.mu.Unlock()

	s.each(ctx, "pause", stores, s.host.Pause)
}

// ResumeAll re-enables persistence for the stores of the outstanding PauseAll.
// Without one, it resumes every store the host knows.
func (s *Impl) ResumeAll(ctx context.Context) {
	s.mu.Lock()
	stores := s.paused
	s.paused = nil
	s.mu.Unlock()

	if stores == nil {
		var err error
		stores, err = s.host.ListDataStores(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("action", "resume").Msg("failed to list data stores")
			return
		}
	}

	s.each(ctx, "resume", stores, s.host.Resume)
}

// each applies fn to every store; a failing store does not stop the others.
func (s *Impl) each(ctx context.Context, action string, stores []string, fn func(context.Context, string) error) {
	failed := 0
	for _, store := range stores {
		if err := fn(ctx, store); err != nil {
			failed++
			s.logger.Error().Err(err).Str("action", action).Str("store", store).Msg("failed to toggle persistence")
		}
	}

	s.logger.Info().
		Str("action", action).
		Int("stores", len(stores)).
		Int("failed", failed).
		Msg("persistence toggled")
}
