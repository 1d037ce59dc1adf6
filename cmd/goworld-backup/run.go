package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/goworld-backup/internal/config"
	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/fgeck/goworld-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backup daemon",
	Long: `Run the backup daemon until interrupted. Every interval it:
1. Warns players in game
2. Pauses world saving
3. Archives the enabled worlds into a timestamped zip
4. Resumes world saving
5. Sends a webhook notification (if configured)
6. Deletes archives beyond the retention limits

The admin API (if configured) accepts manual triggers and reloads.`,
	RunE: runDaemon,
}

// loadConfig reads and validates the --config file.
func loadConfig(cmd *cobra.Command) (*models.BackupConfig, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		_ = cmd.Help()
		return nil, fmt.Errorf("config file is required")
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info().
		Str("config", configFile).
		Strs("worlds", cfg.IncludedStores()).
		Str("destination", cfg.Backup.Path).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	runnerSvc := runner.New(log.Logger, configFile, cfg)
	if err := runnerSvc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("backup service failed")
		return err
	}

	return nil
}
