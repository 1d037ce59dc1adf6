// Package host talks to the game server that owns the world directories.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Service defines the interface for host operations.
type Service interface {
	ListDataStores(ctx context.Context) ([]string, error)
	Pause(ctx context.Context, store string) error
	Resume(ctx context.Context, store string) error
	DataDirectory() string
	Broadcast(ctx context.Context, message string, color models.Color) error
}

// Impl implements the host Service interface by running command templates.
type Impl struct {
	cfg      models.HostConfig
	executor CommandExecutor
	fs       afero.Fs
	logger   zerolog.Logger
}

// New creates a new host service running commands locally.
func New(logger zerolog.Logger, cfg models.HostConfig) *Impl {
	return NewWithExecutor(logger, cfg, &DefaultExecutor{}, afero.NewOsFs())
}

// NewWithExecutor creates a new host service with a custom executor and filesystem.
func NewWithExecutor(logger zerolog.Logger, cfg models.HostConfig, executor CommandExecutor, fs afero.Fs) *Impl {
	return &Impl{
		cfg:      cfg,
		executor: executor,
		fs:       fs,
		logger:   logger,
	}
}

// DataDirectory returns the directory holding one subdirectory per world.
func (s *Impl) DataDirectory() string {
	return s.cfg.DataDir
}

// ListDataStores returns the worlds currently present in the data directory, sorted by name.
// Hidden directories and directories without the world marker file are not worlds.
func (s *Impl) ListDataStores(_ context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("listing data directory %s: %w", s.cfg.DataDir, err)
	}

	stores := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if s.cfg.WorldMarker != "" {
			ok, err := afero.Exists(s.fs, filepath.Join(s.cfg.DataDir, e.Name(), s.cfg.WorldMarker))
			if err != nil || !ok {
				continue
			}
		}
		stores = append(stores, e.Name())
	}
	sort.Strings(stores)
	return stores, nil
}

// StorePath resolves a store name to its source directory.
func StorePath(svc Service, store string) string {
	return filepath.Join(svc.DataDirectory(), store)
}

// Pause disables persistence for store.
func (s *Impl) Pause(ctx context.Context, store string) error {
	return s.run(ctx, "pause", s.cfg.Commands.Pause, map[string]string{"store": store})
}

// Resume re-enables persistence for store.
func (s *Impl) Resume(ctx context.Context, store string) error {
	return s.run(ctx, "resume", s.cfg.Commands.Resume, map[string]string{"store": store})
}

// Broadcast sends message to every connected player.
// {message} is substituted JSON-string escaped since chat commands embed it in JSON text.
func (s *Impl) Broadcast(ctx context.Context, message string, color models.Color) error {
	escaped, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return s.run(ctx, "broadcast", s.cfg.Commands.Broadcast, map[string]string{
		"message": string(escaped[1 : len(escaped)-1]),
		"color":   string(color),
	})
}

func (s *Impl) run(ctx context.Context, action string, template []string, vars map[string]string) error {
	argv, err := expand(template, vars)
	if err != nil {
		return fmt.Errorf("%s command: %w", action, err)
	}

	s.logger.Debug().Str("action", action).Strs("argv", argv).Msg("running host command")

	output, err := s.executor.Execute(ctx, argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("%s command failed: %w, output: %s", action, err, strings.TrimSpace(string(output)))
	}
	return nil
}
