package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/goworld-backup/internal/api"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	apiAddr  string
	apiToken string
)

var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Trigger a backup on the running daemon",
	Long: `Ask a running daemon to start a backup immediately.
The request is refused if a backup is already in progress.`,
	RunE: triggerNow,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the running daemon re-read its configuration",
	RunE:  triggerReload,
}

func init() {
	for _, cmd := range []*cobra.Command{nowCmd, reloadCmd} {
		cmd.Flags().StringVar(&apiAddr, "addr", "", "daemon API address (defaults to api.listen from the config)")
		cmd.Flags().StringVar(&apiToken, "token", "", "API token (defaults to api.token from the config)")
	}
}

// apiClient builds a client from flags, falling back to the config file's api section.
func apiClient(cmd *cobra.Command) (*api.Client, error) {
	addr, token := apiAddr, apiToken
	if addr == "" || token == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		if cfg.API == nil {
			return nil, fmt.Errorf("api is not configured and --addr/--token were not given")
		}
		if addr == "" {
			addr = cfg.API.Listen
		}
		if token == "" {
			token = cfg.API.Token
		}
	}
	return api.NewClient(addr, token, nil), nil
}

func triggerNow(cmd *cobra.Command, args []string) error {
	client, err := apiClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accepted, err := client.RunNow(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to trigger backup")
		return err
	}
	if !accepted {
		log.Warn().Msg("a backup is already in progress")
		return nil
	}

	log.Info().Msg("backup started")
	return nil
}

func triggerReload(cmd *cobra.Command, args []string) error {
	client, err := apiClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Reload(ctx); err != nil {
		log.Error().Err(err).Msg("failed to reload configuration")
		return err
	}

	log.Info().Msg("configuration reloaded")
	return nil
}
