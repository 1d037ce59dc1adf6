// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Defaults applied when a key is absent.
const (
	DefaultIntervalSeconds = 3600
	DefaultWarningSeconds  = 3
	DefaultBackupPath      = "backups"
	DefaultDataDir         = "."
	DefaultWorldMarker     = "level.dat"
	DefaultAPIListen       = "127.0.0.1:8085"
	DefaultAPIRateLimit    = 30
	DefaultSSHPort         = 22
)

// Default host command templates, suitable for an rcon-cli managed server.
var (
	DefaultPauseCommand     = []string{"rcon-cli", "save-off"}
	DefaultResumeCommand    = []string{"rcon-cli", "save-on"}
	DefaultBroadcastCommand = []string{"rcon-cli", `tellraw @a {"text":"{message}","color":"{color}"}`}
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// Watch calls onChange with the re-parsed configuration whenever the loaded file changes.
// A file that no longer parses is reported through err and the previous config stays active.
func (p *Parser) Watch(onChange func(cfg *models.BackupConfig, err error)) {
	p.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := p.parse()
		if err == nil {
			err = Validate(cfg)
		}
		if err != nil {
			onChange(nil, fmt.Errorf("reloading %s: %w", e.Name, err))
			return
		}
		onChange(cfg, nil)
	})
	p.v.WatchConfig()
}

// worldEntry is the YAML shape of one entry of the worlds list.
type worldEntry struct {
	Name    string `mapstructure:"name"`
	Enabled *bool  `mapstructure:"enabled"`
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.BackupConfig, error) {
	cfg := &models.BackupConfig{}

	// Parse schedule.
	intervalSeconds := DefaultIntervalSeconds
	if p.v.IsSet("backup.interval_seconds") {
		intervalSeconds = p.v.GetInt("backup.interval_seconds")
	}
	warningSeconds := DefaultWarningSeconds
	if p.v.IsSet("backup.warning_seconds") {
		warningSeconds = p.v.GetInt("backup.warning_seconds")
	}
	cfg.Schedule = models.ScheduleSettings{
		Interval: time.Duration(intervalSeconds) * time.Second,
		Warning:  time.Duration(warningSeconds) * time.Second,
	}

	if cfg.Schedule.Interval <= 0 {
		return nil, fmt.Errorf("backup.interval_seconds must be greater than zero")
	}
	if cfg.Schedule.Warning < 0 {
		return nil, fmt.Errorf("backup.warning_seconds must not be negative")
	}

	// Parse backup settings.
	cfg.Backup = models.BackupSettings{
		Path: p.expandEnv(p.v.GetString("backup.path")),
	}
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = DefaultBackupPath
	}

	// Parse retention policy. Zero means unlimited.
	cfg.Retention = models.RetentionPolicy{
		MaxBackups: p.v.GetInt("cleanup.max_backups"),
		MaxAgeDays: p.v.GetInt("cleanup.max_age_days"),
	}
	if cfg.Retention.MaxBackups < 0 {
		return nil, fmt.Errorf("cleanup.max_backups must not be negative")
	}
	if cfg.Retention.MaxAgeDays < 0 {
		return nil, fmt.Errorf("cleanup.max_age_days must not be negative")
	}

	// Parse worlds.
	var worlds []worldEntry
	if err := p.v.UnmarshalKey("worlds", &worlds); err != nil {
		return nil, fmt.Errorf("worlds must be a list of {name, enabled}: %w", err)
	}
	seen := make(map[string]bool, len(worlds))
	for i, w := range worlds {
		if w.Name == "" {
			return nil, fmt.Errorf("worlds[%d].name is required", i)
		}
		if strings.ContainsAny(w.Name, `/\`) || w.Name == "." || w.Name == ".." {
			return nil, fmt.Errorf("worlds[%d].name must be a plain directory name", i)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("world %q is listed twice", w.Name)
		}
		seen[w.Name] = true

		enabled := true
		if w.Enabled != nil {
			enabled = *w.Enabled
		}
		cfg.Worlds = append(cfg.Worlds, models.DataStore{Name: w.Name, Enabled: enabled})
	}

	// Parse host settings.
	cfg.Host = models.HostConfig{
		DataDir:       p.expandEnv(p.v.GetString("host.data_dir")),
		ResumeOnStart: true,
		Commands: models.HostCommands{
			Pause:     p.v.GetStringSlice("host.commands.pause"),
			Resume:    p.v.GetStringSlice("host.commands.resume"),
			Broadcast: p.v.GetStringSlice("host.commands.broadcast"),
		},
	}
	cfg.Host.WorldMarker = DefaultWorldMarker
	if p.v.IsSet("host.world_marker") {
		cfg.Host.WorldMarker = p.v.GetString("host.world_marker")
	}
	if strings.ContainsAny(cfg.Host.WorldMarker, `/\`) {
		return nil, fmt.Errorf("host.world_marker must be a file name")
	}
	if p.v.IsSet("host.resume_on_start") {
		cfg.Host.ResumeOnStart = p.v.GetBool("host.resume_on_start")
	}
	if cfg.Host.DataDir == "" {
		cfg.Host.DataDir = DefaultDataDir
	}
	if len(cfg.Host.Commands.Pause) == 0 {
		cfg.Host.Commands.Pause = DefaultPauseCommand
	}
	if len(cfg.Host.Commands.Resume) == 0 {
		cfg.Host.Commands.Resume = DefaultResumeCommand
	}
	if len(cfg.Host.Commands.Broadcast) == 0 {
		cfg.Host.Commands.Broadcast = DefaultBroadcastCommand
	}

	// Parse optional webhook config.
	if p.v.IsSet("webhook") {
		cfg.Webhook = &models.WebhookConfig{
			Enabled: p.v.GetBool("webhook.enabled"),
			URL:     p.expandEnv(p.v.GetString("webhook.url")),
		}

		if cfg.Webhook.Enabled {
			if cfg.Webhook.URL == "" {
				return nil, fmt.Errorf("webhook.url is required when webhook is enabled")
			}
			u, err := url.Parse(cfg.Webhook.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, fmt.Errorf("webhook.url must be an http or https URL")
			}
		}
	}

	// Parse optional SSH config.
	if p.v.IsSet("ssh") {
		cfg.SSH = &models.SSHConfig{
			Host:     p.v.GetString("ssh.host"),
			Port:     p.v.GetInt("ssh.port"),
			Username: p.v.GetString("ssh.username"),
			KeyPath:  p.expandEnv(p.v.GetString("ssh.key_path")),
		}

		if cfg.SSH.Host == "" {
			return nil, fmt.Errorf("ssh.host is required when ssh is configured")
		}
		if cfg.SSH.Port == 0 {
			cfg.SSH.Port = DefaultSSHPort
		}
		if cfg.SSH.Username == "" {
			cfg.SSH.Username = "root"
		}
		if cfg.SSH.KeyPath == "" {
			return nil, fmt.Errorf("ssh.key_path is required when ssh is configured")
		}
	}

	// Parse optional admin API config.
	if p.v.IsSet("api") {
		cfg.API = &models.APIConfig{
			Listen:    p.v.GetString("api.listen"),
			Token:     p.expandEnv(p.v.GetString("api.token")),
			RateLimit: p.v.GetInt("api.rate_limit"),
		}

		if cfg.API.Listen == "" {
			cfg.API.Listen = DefaultAPIListen
		}
		if cfg.API.Token == "" {
			return nil, fmt.Errorf("api.token is required when api is configured")
		}
		if cfg.API.RateLimit <= 0 {
			cfg.API.RateLimit = DefaultAPIRateLimit
		}
	}

	cfg.Watch = p.v.GetBool("watch")

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("backup.interval_seconds must be greater than zero")
	}

	if cfg.Backup.Path == "" {
		return fmt.Errorf("backup.path is required")
	}

	if cfg.Host.DataDir == "" {
		return fmt.Errorf("host.data_dir is required")
	}

	if cfg.Webhook != nil && cfg.Webhook.Enabled && cfg.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook is enabled")
	}

	if cfg.API != nil && cfg.API.Token == "" {
		return fmt.Errorf("api.token is required when api is configured")
	}

	return nil
}
