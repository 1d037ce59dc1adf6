// Package archiver writes world directories into timestamped zip archives.
package archiver

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// TimestampFormat is the layout embedded in archive file names.
const TimestampFormat = "2006-01-02_15-04-05"

// FilePrefix starts every archive file name.
const FilePrefix = "backup_"

// Service defines the interface for archive creation.
type Service interface {
	Archive(ctx context.Context, selections []models.StoreSelection, destDir string) (*models.ArchiveResult, error)
}

// Impl implements the archiver Service interface.
type Impl struct {
	fs     afero.Fs
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a new archiver working on the OS filesystem.
func New(logger zerolog.Logger) *Impl {
	return NewWithFs(logger, afero.NewOsFs(), time.Now)
}

// NewWithFs creates a new archiver with a custom filesystem and clock (for testing).
func NewWithFs(logger zerolog.Logger, fs afero.Fs, now func() time.Time) *Impl {
	return &Impl{
		fs:     fs,
		now:    now,
		logger: logger,
	}
}

// FileName returns the archive file name for the given time.
func FileName(t time.Time) string {
	return FilePrefix + t.Format(TimestampFormat) + models.ArchiveExt
}

// Archive writes all existing selections into one new archive inside destDir.
// The archive is built under a temporary name and only renamed into place once complete,
// so a failed run never leaves a file that retention would treat as a backup.
func (s *Impl) Archive(ctx context.Context, selections []models.StoreSelection, destDir string) (*models.ArchiveResult, error) {
	start := time.Now()

	if err := s.fs.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", models.ErrIOFailure, destDir, err)
	}

	name := FileName(s.now())
	finalPath := filepath.Join(destDir, name)
	tmpPath := filepath.Join(destDir, "."+name+".tmp")

	s.logger.Info().
		Str("archive", finalPath).
		Int("selections", len(selections)).
		Msg("creating archive")

	result, err := s.write(ctx, selections, tmpPath)
	if err != nil {
		if rmErr := s.fs.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn().Err(rmErr).Str("path", tmpPath).Msg("failed to remove partial archive")
		}
		return nil, err
	}

	if err := s.fs.Rename(tmpPath, finalPath); err != nil {
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("%w: renaming archive: %w", models.ErrIOFailure, err)
	}

	if info, err := s.fs.Stat(finalPath); err == nil {
		result.SizeBytes = info.Size()
	}
	result.Path = finalPath
	result.Name = name
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("archive", name).
		Int("files", result.FilesWritten).
		Int64("size", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("archive created")

	return result, nil
}

func (s *Impl) write(ctx context.Context, selections []models.StoreSelection, tmpPath string) (result *models.ArchiveResult, err error) {
	f, err := s.fs.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", models.ErrIOFailure, tmpPath, err)
	}

	zw := zip.NewWriter(f)
	defer func() {
		// Both closes must succeed for the archive to be complete.
		if cerr := zw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: finalizing archive: %w", models.ErrIOFailure, cerr)
		}
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing archive: %w", models.ErrIOFailure, cerr)
		}
		if err != nil {
			result = nil
		}
	}()

	result = &models.ArchiveResult{}
	for _, sel := range selections {
		if _, statErr := s.fs.Stat(sel.SourcePath); statErr != nil {
			if os.IsNotExist(statErr) {
				s.logger.Debug().Str("source", sel.SourcePath).Msg("source missing, skipping")
				continue
			}
			return nil, fmt.Errorf("%w: stat %s: %w", models.ErrIOFailure, sel.SourcePath, statErr)
		}

		n, walkErr := s.addTree(ctx, zw, sel)
		if walkErr != nil {
			return nil, walkErr
		}
		result.FilesWritten += n
		result.Stores = append(result.Stores, sel.RootName)
	}

	return result, nil
}

func (s *Impl) addTree(ctx context.Context, zw *zip.Writer, sel models.StoreSelection) (int, error) {
	count := 0
	err := afero.Walk(s.fs, sel.SourcePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Symlinked files are archived with their target's content; linked directories are not entered.
		if info.Mode()&os.ModeSymlink != 0 {
			target, statErr := s.fs.Stat(p)
			if statErr != nil {
				s.logger.Debug().Err(statErr).Str("path", p).Msg("dangling symlink, skipping")
				return nil
			}
			info = target
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(sel.SourcePath, p)
		if err != nil {
			return err
		}
		if err := s.addFile(zw, p, path.Join(sel.RootName, filepath.ToSlash(rel)), info); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: archiving %s: %w", models.ErrIOFailure, sel.SourcePath, err)
	}
	return count, nil
}

func (s *Impl) addFile(zw *zip.Writer, src, entryName string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = entryName
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", entryName, err)
	}

	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}
