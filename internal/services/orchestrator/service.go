// Package orchestrator runs the warning, pause, archive, resume and cleanup cycle.
//
// A single control goroutine (Run) owns every state transition. Archive writing happens on
// a worker goroutine whose outcome is handed back to the control goroutine, so resuming
// persistence, broadcasting, notifying and cleanup never interleave with another cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fgeck/goworld-backup/internal/metrics"
	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/fgeck/goworld-backup/internal/services/archiver"
	"github.com/fgeck/goworld-backup/internal/services/guard"
	"github.com/fgeck/goworld-backup/internal/services/host"
	"github.com/fgeck/goworld-backup/internal/services/retention"
	"github.com/fgeck/goworld-backup/internal/services/webhook"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Trigger sources.
const (
	SourceTimer  = "timer"
	SourceManual = "manual"
)

// ErrStopped is returned by RunNow once the control loop has exited.
var ErrStopped = errors.New("orchestrator stopped")

// Service defines the interface of the backup orchestrator.
type Service interface {
	Run(ctx context.Context) error
	RunNow(ctx context.Context) (bool, error)
	Reload(cfg *models.BackupConfig)
	Status() models.Status
}

// Impl implements the orchestrator Service interface.
type Impl struct {
	archiverSvc  archiver.Service
	retentionSvc retention.Service
	webhookSvc   webhook.Service
	guardSvc     guard.Service
	hostSvc      host.Service
	logger       zerolog.Logger

	cfg      atomic.Pointer[models.BackupConfig]
	state    atomic.Int32
	triggers chan triggerRequest
	reloaded chan struct{}
	stopped  chan struct{}

	mu     sync.Mutex
	cycles int
	last   *models.CycleSummary
}

type triggerRequest struct {
	source   string
	accepted chan bool
}

// cycle is one in-flight Warning -> Archiving -> Cleanup sequence.
type cycle struct {
	id         string
	source     string
	startedAt  time.Time
	cfg        *models.BackupConfig // snapshot taken on entering Warning
	selections []models.StoreSelection
}

type outcome struct {
	result *models.ArchiveResult
	err    error
}

// New creates a new orchestrator. cfg must pass config.Validate.
func New(
	logger zerolog.Logger,
	cfg *models.BackupConfig,
	archiverSvc archiver.Service,
	retentionSvc retention.Service,
	webhookSvc webhook.Service,
	guardSvc guard.Service,
	hostSvc host.Service,
) *Impl {
	s := &Impl{
		archiverSvc:  archiverSvc,
		retentionSvc: retentionSvc,
		webhookSvc:   webhookSvc,
		guardSvc:     guardSvc,
		hostSvc:      hostSvc,
		logger:       logger,
		triggers:     make(chan triggerRequest),
		reloaded:     make(chan struct{}, 1),
		stopped:      make(chan struct{}),
	}
	s.cfg.Store(cfg)
	return s
}

// State returns the current state.
func (s *Impl) State() models.State {
	return models.State(s.state.Load())
}

func (s *Impl) setState(st models.State) {
	s.state.Store(int32(st))
	metrics.SetState(st)
}

// Reload replaces the configuration. An in-flight cycle keeps its archive selection;
// cleanup thresholds and the timer interval follow the new configuration.
func (s *Impl) Reload(cfg *models.BackupConfig) {
	s.cfg.Store(cfg)
	select {
	case s.reloaded <- struct{}{}:
	default:
	}
	s.logger.Info().
		Dur("interval", cfg.Schedule.Interval).
		Int("max_backups", cfg.Retention.MaxBackups).
		Int("max_age_days", cfg.Retention.MaxAgeDays).
		Msg("configuration reloaded")
}

// RunNow asks the control loop to start a cycle. It reports false when a cycle is
// already in flight.
func (s *Impl) RunNow(ctx context.Context) (bool, error) {
	req := triggerRequest{source: SourceManual, accepted: make(chan bool, 1)}

	select {
	case s.triggers <- req:
	case <-s.stopped:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-req.accepted:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Status returns a snapshot of the orchestrator.
func (s *Impl) Status() models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.Status{
		State:  s.State().String(),
		Cycles: s.cycles,
	}
	if s.last != nil {
		last := *s.last
		st.LastCycle = &last
	}
	return st
}

// Run is the control loop. It returns when ctx is cancelled, after any archive in flight
// has finished and persistence has been resumed.
//
//nolint:gocognit // single select loop owning all transitions
func (s *Impl) Run(ctx context.Context) error {
	defer close(s.stopped)

	interval := s.cfg.Load().Schedule.Interval
	if interval <= 0 {
		return fmt.Errorf("invalid backup interval %s", interval)
	}

	// Cycle work must not be cut short by shutdown.
	work := context.WithoutCancel(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		current *cycle
		warning *time.Timer
		warnC   <-chan time.Time
		done    chan outcome
	)

	start := func(source string) bool {
		c := s.enterWarning(work, source)
		if c == nil {
			return false
		}
		current = c
		warning = time.NewTimer(c.cfg.Schedule.Warning)
		warnC = warning.C
		return true
	}

	s.logger.Info().Dur("interval", interval).Msg("backup scheduler started")

	for {
		select {
		case <-ctx.Done():
			if done != nil {
				s.logger.Info().Str("cycle_id", current.id).Msg("waiting for archive to finish before shutdown")
				s.finish(work, current, <-done)
			} else if warning != nil {
				warning.Stop()
				s.logger.Info().Str("cycle_id", current.id).Msg("pending backup abandoned")
				s.setState(models.StateIdle)
			}
			s.logger.Info().Msg("backup scheduler stopped")
			return nil

		case <-ticker.C:
			start(SourceTimer)

		case req := <-s.triggers:
			req.accepted <- start(req.source)

		case <-s.reloaded:
			if next := s.cfg.Load().Schedule.Interval; next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
				s.logger.Info().Dur("interval", interval).Msg("backup interval changed")
			}

		case <-warnC:
			warning, warnC = nil, nil
			done = s.enterArchiving(work, current)

		case out := <-done:
			done = nil
			s.finish(work, current, out)
			current = nil
		}
	}
}

// enterWarning performs Idle -> Warning, or returns nil when a cycle is already in flight.
func (s *Impl) enterWarning(ctx context.Context, source string) *cycle {
	if s.State() != models.StateIdle {
		metrics.RecordTrigger(source, false)
		s.logger.Debug().Str("source", source).Str("state", s.State().String()).Msg("backup already in progress, trigger ignored")
		return nil
	}
	metrics.RecordTrigger(source, true)

	cfg := s.cfg.Load()
	c := &cycle{
		id:         uuid.New().String(),
		source:     source,
		startedAt:  time.Now(),
		cfg:        cfg,
		selections: s.selections(cfg),
	}
	s.setState(models.StateWarning)

	s.logger.Info().
		Str("cycle_id", c.id).
		Str("source", source).
		Dur("warning", cfg.Schedule.Warning).
		Msg("backup scheduled")

	s.broadcast(ctx, fmt.Sprintf("[Backup] World backup will start in %s.", humanDelay(cfg.Schedule.Warning)), models.ColorYellow)
	return c
}

// selections resolves the included stores of cfg to source directories.
func (s *Impl) selections(cfg *models.BackupConfig) []models.StoreSelection {
	names := cfg.IncludedStores()
	out := make([]models.StoreSelection, 0, len(names))
	for _, name := range names {
		out = append(out, models.StoreSelection{
			SourcePath: host.StorePath(s.hostSvc, name),
			RootName:   name,
		})
	}
	return out
}

// enterArchiving performs Warning -> Archiving and starts the worker.
func (s *Impl) enterArchiving(ctx context.Context, c *cycle) chan outcome {
	s.setState(models.StateArchiving)
	s.guardSvc.PauseAll(ctx)

	s.logger.Info().
		Str("cycle_id", c.id).
		Strs("stores", c.cfg.IncludedStores()).
		Str("destination", c.cfg.Backup.Path).
		Msg("starting backup")

	done := make(chan outcome, 1)
	go func() {
		done <- s.archive(ctx, c)
	}()
	return done
}

// archive runs on the worker goroutine; nothing escapes it but the outcome.
func (s *Impl) archive(ctx context.Context, c *cycle) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("archive panic: %v", r)}
		}
	}()

	result, err := s.archiverSvc.Archive(ctx, c.selections, c.cfg.Backup.Path)
	if err == nil && result == nil {
		err = errors.New("archiver returned no result")
	}
	return outcome{result: result, err: err}
}

// finish performs Archiving -> Idle. Persistence is resumed before anything else.
func (s *Impl) finish(ctx context.Context, c *cycle, out outcome) {
	s.guardSvc.ResumeAll(ctx)

	summary := models.CycleSummary{
		ID:        c.id,
		Trigger:   c.source,
		StartedAt: c.startedAt,
	}

	if out.err != nil {
		s.logger.Error().Err(out.err).Str("cycle_id", c.id).Msg("backup failed")
		s.broadcast(ctx, "[Backup] Backup failed! Check the server logs.", models.ColorRed)
		metrics.RecordCycle("failure", 0)

		summary.Error = out.err.Error()
		s.record(summary)
		s.setState(models.StateIdle)
		return
	}

	name := out.result.Name
	s.logger.Info().
		Str("cycle_id", c.id).
		Str("archive", name).
		Int64("size", out.result.SizeBytes).
		Msg("backup completed")
	metrics.RecordCycle("success", out.result.Duration)
	metrics.RecordArchive(out.result.SizeBytes)

	s.broadcast(ctx, "[Backup] Backup completed successfully!", models.ColorGreen)

	current := s.cfg.Load()
	s.webhookSvc.Notify(ctx, current.Webhook, "Backup Completed", fmt.Sprintf("Backup file created:\n`%s`", name))

	summary.Success = true
	summary.ArchiveName = name

	s.setState(models.StateCleanup)
	// The new archive lives where this cycle wrote it; thresholds come from the live config.
	result, err := s.retentionSvc.Cleanup(c.cfg.Backup.Path, current.Retention)
	if err != nil {
		s.logger.Warn().Err(err).Str("cycle_id", c.id).Msg("cleanup failed")
	} else {
		summary.Deleted = len(result.Deleted)
		metrics.RecordCleanup(len(result.Deleted), len(result.Failures))
	}

	s.record(summary)
	s.setState(models.StateIdle)
}

func (s *Impl) record(summary models.CycleSummary) {
	summary.FinishedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.last = &summary
}

func (s *Impl) broadcast(ctx context.Context, message string, color models.Color) {
	if err := s.hostSvc.Broadcast(ctx, message, color); err != nil {
		s.logger.Warn().Err(err).Str("message", message).Msg("broadcast failed")
	}
}

// humanDelay renders d for players, e.g. "3 seconds" or "2m0s".
func humanDelay(d time.Duration) string {
	switch {
	case d < time.Second:
		return "a moment"
	case d == time.Second:
		return "1 second"
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	default:
		return d.Round(time.Second).String()
	}
}
