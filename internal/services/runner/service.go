// Package runner wires the backup services together and runs the daemon.
package runner

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/fgeck/goworld-backup/internal/api"
	"github.com/fgeck/goworld-backup/internal/config"
	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/fgeck/goworld-backup/internal/services/archiver"
	"github.com/fgeck/goworld-backup/internal/services/guard"
	"github.com/fgeck/goworld-backup/internal/services/host"
	"github.com/fgeck/goworld-backup/internal/services/orchestrator"
	"github.com/fgeck/goworld-backup/internal/services/retention"
	"github.com/fgeck/goworld-backup/internal/services/ssh"
	"github.com/fgeck/goworld-backup/internal/services/webhook"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Notification sent once the daemon is up.
const (
	StartupTitle       = "Backup Service Started"
	StartupDescription = "The backup system is now running."
)

// Service defines the interface for the backup daemon.
type Service interface {
	Run(ctx context.Context) error
	Reload(ctx context.Context) error
}

// LoadFunc reads and validates a configuration file.
type LoadFunc func(path string) (*models.BackupConfig, error)

// WatchFunc calls onChange whenever the configuration file changes.
type WatchFunc func(path string, onChange func(cfg *models.BackupConfig, err error)) error

// Impl implements the runner Service interface.
type Impl struct {
	orchestratorSvc orchestrator.Service
	guardSvc        guard.Service
	webhookSvc      webhook.Service
	logger          zerolog.Logger
	configPath      string
	cfg             *models.BackupConfig
	load            LoadFunc
	watch           WatchFunc

	mu      sync.Mutex
	applied *models.BackupConfig // last configuration handed to the orchestrator
}

// New creates a new runner backed by the local filesystem, running host commands locally
// or over SSH when an ssh section is configured.
func New(logger zerolog.Logger, configPath string, cfg *models.BackupConfig) *Impl {
	var executor host.CommandExecutor = &host.DefaultExecutor{}
	if cfg.SSH != nil {
		executor = host.NewSSHExecutor(ssh.New(logger), *cfg.SSH)
	}

	hostSvc := host.NewWithExecutor(logger, cfg.Host, executor, afero.NewOsFs())
	guardSvc := guard.New(logger, hostSvc)
	webhookSvc := webhook.New(logger)
	orchestratorSvc := orchestrator.New(
		logger,
		cfg,
		archiver.New(logger),
		retention.New(logger),
		webhookSvc,
		guardSvc,
		hostSvc,
	)

	return NewWithServices(logger, configPath, cfg, orchestratorSvc, guardSvc, webhookSvc, LoadFile, WatchFile)
}

// NewWithServices creates a new runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	configPath string,
	cfg *models.BackupConfig,
	orchestratorSvc orchestrator.Service,
	guardSvc guard.Service,
	webhookSvc webhook.Service,
	load LoadFunc,
	watch WatchFunc,
) *Impl {
	return &Impl{
		orchestratorSvc: orchestratorSvc,
		guardSvc:        guardSvc,
		webhookSvc:      webhookSvc,
		logger:          logger,
		configPath:      configPath,
		cfg:             cfg,
		load:            load,
		watch:           watch,
		applied:         cfg,
	}
}

// LoadFile parses and validates the configuration file at path.
func LoadFile(path string) (*models.BackupConfig, error) {
	cfg, err := config.NewParser().LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WatchFile watches the configuration file at path using fsnotify.
func WatchFile(path string, onChange func(cfg *models.BackupConfig, err error)) error {
	parser := config.NewParser()
	if _, err := parser.LoadFile(path); err != nil {
		return err
	}
	parser.Watch(onChange)
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled.
func (s *Impl) Run(ctx context.Context) error {
	cfg := s.cfg

	s.logger.Info().
		Strs("worlds", cfg.IncludedStores()).
		Str("data_dir", cfg.Host.DataDir).
		Str("destination", cfg.Backup.Path).
		Dur("interval", cfg.Schedule.Interval).
		Msg("starting backup service")

	// A previous run may have died with persistence paused.
	if cfg.Host.ResumeOnStart {
		s.guardSvc.ResumeAll(ctx)
	}

	if cfg.Watch && s.watch != nil && s.configPath != "" {
		if err := s.watch(s.configPath, s.onConfigChange); err != nil {
			return fmt.Errorf("watching config file: %w", err)
		}
		s.logger.Info().Str("file", s.configPath).Msg("watching configuration file")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.orchestratorSvc.Run(gctx)
	})

	if cfg.API != nil {
		srv := api.New(s.logger, *cfg.API, s.orchestratorSvc, s)
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})
	}

	s.webhookSvc.Notify(ctx, cfg.Webhook, StartupTitle, StartupDescription)

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info().Msg("backup service stopped")
	return nil
}

// Reload re-reads the configuration file and hands it to the orchestrator.
func (s *Impl) Reload(_ context.Context) error {
	if s.configPath == "" {
		return fmt.Errorf("no configuration file to reload")
	}
	cfg, err := s.load(s.configPath)
	if err != nil {
		return fmt.Errorf("reloading %s: %w", s.configPath, err)
	}
	s.apply(cfg)
	return nil
}

func (s *Impl) onConfigChange(cfg *models.BackupConfig, err error) {
	if err != nil {
		s.logger.Error().Err(err).Msg("ignoring invalid configuration change")
		return
	}
	s.apply(cfg)
}

func (s *Impl) apply(cfg *models.BackupConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connectionChanged(s.applied, cfg) {
		s.logger.Warn().Msg("connection settings changed, restart to apply them")
	}
	s.applied = cfg
	s.orchestratorSvc.Reload(cfg)
}

// connectionChanged reports whether settings bound at startup differ between a and b.
func connectionChanged(a, b *models.BackupConfig) bool {
	return !reflect.DeepEqual(a.Host, b.Host) ||
		!reflect.DeepEqual(a.SSH, b.SSH) ||
		!reflect.DeepEqual(a.API, b.API)
}
