// Package retention deletes archives that fall outside the configured retention policy.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Service defines the interface for retention operations.
type Service interface {
	Cleanup(dir string, policy models.RetentionPolicy) (*models.CleanupResult, error)
}

// Impl implements the retention Service interface.
type Impl struct {
	fs     afero.Fs
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a new retention service working on the OS filesystem.
func New(logger zerolog.Logger) *Impl {
	return NewWithFs(logger, afero.NewOsFs(), time.Now)
}

// NewWithFs creates a new retention service with a custom filesystem and clock (for testing).
func NewWithFs(logger zerolog.Logger, fs afero.Fs, now func() time.Time) *Impl {
	return &Impl{
		fs:     fs,
		now:    now,
		logger: logger,
	}
}

// Cleanup applies the count and age limits of policy to the archives in dir.
// Both limits are evaluated against one listing; a file eligible under either is deleted once.
func (s *Impl) Cleanup(dir string, policy models.RetentionPolicy) (*models.CleanupResult, error) {
	start := time.Now()
	result := &models.CleanupResult{}

	if !policy.Enabled() {
		return result, nil
	}

	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %s: %w", models.ErrIOFailure, dir, err)
	}
	if !exists {
		s.logger.Debug().Str("dir", dir).Msg("backup directory missing, nothing to clean")
		return result, nil
	}

	archives, err := s.list(dir)
	if err != nil {
		return nil, err
	}

	doomed := make(map[string]bool)
	if policy.MaxBackups > 0 && len(archives) > policy.MaxBackups {
		for _, info := range archives[policy.MaxBackups:] {
			doomed[info.Name()] = true
		}
	}
	if policy.MaxAgeDays > 0 {
		cutoff := s.now().Add(-time.Duration(policy.MaxAgeDays) * 24 * time.Hour)
		for _, info := range archives {
			if info.ModTime().Before(cutoff) {
				doomed[info.Name()] = true
			}
		}
	}

	// Delete oldest first so an interrupted run keeps the newest archives.
	for i := len(archives) - 1; i >= 0; i-- {
		name := archives[i].Name()
		if !doomed[name] {
			continue
		}
		p := filepath.Join(dir, name)
		if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
			if result.Failures == nil {
				result.Failures = make(map[string]error)
			}
			result.Failures[name] = fmt.Errorf("%w: deleting %s: %w", models.ErrIOFailure, p, err)
			s.logger.Warn().Err(err).Str("archive", name).Msg("failed to delete archive")
			continue
		}
		result.Deleted = append(result.Deleted, name)
		s.logger.Info().Str("archive", name).Msg("deleted old backup")
	}

	result.Kept = len(archives) - len(result.Deleted)
	result.Duration = time.Since(start)

	s.logger.Info().
		Int("deleted", len(result.Deleted)).
		Int("kept", result.Kept).
		Int("failed", len(result.Failures)).
		Msg("retention policy applied")

	return result, nil
}

// list returns the archives in dir, newest first.
func (s *Impl) list(dir string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", models.ErrIOFailure, dir, err)
	}

	archives := make([]os.FileInfo, 0, len(entries))
	for _, info := range entries {
		if info.IsDir() || !strings.HasSuffix(info.Name(), models.ArchiveExt) {
			continue
		}
		archives = append(archives, info)
	}

	sort.SliceStable(archives, func(i, j int) bool {
		return archives[i].ModTime().After(archives[j].ModTime())
	})
	return archives, nil
}
