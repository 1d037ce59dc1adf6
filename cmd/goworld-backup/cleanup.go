package main

import (
	"github.com/fgeck/goworld-backup/internal/services/retention"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy once",
	Long:  `Delete archives in the backup directory that exceed cleanup.max_backups or cleanup.max_age_days.`,
	RunE:  runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	result, err := retention.New(log.Logger).Cleanup(cfg.Backup.Path, cfg.Retention)
	if err != nil {
		log.Error().Err(err).Str("dir", cfg.Backup.Path).Msg("cleanup failed")
		return err
	}

	for name, ferr := range result.Failures {
		log.Warn().Err(ferr).Str("file", name).Msg("could not delete archive")
	}

	log.Info().
		Int("deleted", len(result.Deleted)).
		Int("kept", result.Kept).
		Dur("duration", result.Duration).
		Msg("cleanup completed")
	return nil
}
