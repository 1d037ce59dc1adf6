package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/goworld-backup/internal/config"
	"github.com/fgeck/goworld-backup/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var testSSH bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without executing any backup operations.`,
	RunE:  validateConfig,
}

func init() {
	validateCmd.Flags().BoolVar(&testSSH, "test-ssh", false, "also test the SSH connection (if configured)")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Interval: %s\n", cfg.Schedule.Interval)
	fmt.Printf("  Warning: %s\n", cfg.Schedule.Warning)
	fmt.Printf("  Destination: %s\n", cfg.Backup.Path)
	fmt.Printf("  Data directory: %s\n", cfg.Host.DataDir)
	fmt.Printf("  World marker: %s\n", cfg.Host.WorldMarker)
	fmt.Println()
	fmt.Println("Worlds:")
	if len(cfg.Worlds) == 0 {
		fmt.Println("  (none configured)")
	}
	for _, w := range cfg.Worlds {
		fmt.Printf("  %s: %v\n", w.Name, w.Enabled)
	}
	fmt.Println()
	fmt.Println("Retention Policy:")
	fmt.Printf("  Max backups: %s\n", limit(cfg.Retention.MaxBackups))
	fmt.Printf("  Max age (days): %s\n", limit(cfg.Retention.MaxAgeDays))
	fmt.Println()
	fmt.Println("Host Commands:")
	fmt.Printf("  Pause: %s\n", strings.Join(cfg.Host.Commands.Pause, " "))
	fmt.Printf("  Resume: %s\n", strings.Join(cfg.Host.Commands.Resume, " "))
	fmt.Printf("  Broadcast: %s\n", strings.Join(cfg.Host.Commands.Broadcast, " "))
	fmt.Printf("  Resume on start: %v\n", cfg.Host.ResumeOnStart)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Webhook: %v\n", cfg.Webhook != nil && cfg.Webhook.Enabled)
	fmt.Printf("  SSH: %v\n", cfg.SSH != nil)
	fmt.Printf("  Admin API: %v\n", cfg.API != nil)
	fmt.Printf("  Watch config: %v\n", cfg.Watch)

	if cfg.SSH != nil {
		fmt.Println()
		fmt.Println("SSH Configuration:")
		fmt.Printf("  Host: %s\n", cfg.SSH.Host)
		fmt.Printf("  Port: %d\n", cfg.SSH.Port)
		fmt.Printf("  Username: %s\n", cfg.SSH.Username)
		fmt.Printf("  Key: %s\n", cfg.SSH.KeyPath)
	}

	if cfg.API != nil {
		fmt.Println()
		fmt.Println("Admin API Configuration:")
		fmt.Printf("  Listen: %s\n", cfg.API.Listen)
		fmt.Printf("  Rate limit: %d/min\n", cfg.API.RateLimit)
		fmt.Printf("  Token: (configured)\n")
	}

	if testSSH && cfg.SSH != nil {
		fmt.Println()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		result, err := ssh.New(log.Logger).TestConnection(ctx, *cfg.SSH)
		if err == nil {
			err = result.Error
		}
		if err != nil {
			log.Error().Err(err).Str("host", cfg.SSH.Host).Msg("SSH connection test failed")
			return err
		}
		fmt.Printf("SSH connection: %s\n", strings.TrimSpace(result.Output))
	}

	return nil
}

func limit(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
