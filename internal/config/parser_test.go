package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_LoadReader_MinimalConfig(t *testing.T) {
	yaml := `
worlds:
  - name: world
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	// Check defaults
	assert.Equal(t, time.Hour, cfg.Schedule.Interval)
	assert.Equal(t, 3*time.Second, cfg.Schedule.Warning)
	assert.Equal(t, "backups", cfg.Backup.Path)
	assert.Equal(t, models.RetentionPolicy{}, cfg.Retention)
	assert.Equal(t, []models.DataStore{{Name: "world", Enabled: true}}, cfg.Worlds)
	assert.Equal(t, ".", cfg.Host.DataDir)
	assert.Equal(t, "level.dat", cfg.Host.WorldMarker)
	assert.True(t, cfg.Host.ResumeOnStart)
	assert.Equal(t, DefaultPauseCommand, cfg.Host.Commands.Pause)
	assert.Equal(t, DefaultResumeCommand, cfg.Host.Commands.Resume)
	assert.Equal(t, DefaultBroadcastCommand, cfg.Host.Commands.Broadcast)
	assert.Nil(t, cfg.Webhook)
	assert.Nil(t, cfg.SSH)
	assert.Nil(t, cfg.API)
	assert.False(t, cfg.Watch)
}

func TestParser_LoadReader_FullConfig(t *testing.T) {
	yaml := `
backup:
  interval_seconds: 1800
  warning_seconds: 10
  path: /mnt/backups

cleanup:
  max_backups: 24
  max_age_days: 7

worlds:
  - name: world
    enabled: true
  - name: world_nether
    enabled: false
  - name: World_The_End

host:
  data_dir: /srv/minecraft
  world_marker: ""
  resume_on_start: false
  commands:
    pause: ["mcrcon", "-p", "secret", "save-off"]
    resume: ["mcrcon", "-p", "secret", "save-on"]
    broadcast: ["mcrcon", "-p", "secret", "say {message}"]

webhook:
  enabled: true
  url: "https://discord.com/api/webhooks/123/abc"

ssh:
  host: "192.168.1.20"
  port: 2222
  username: "minecraft"
  key_path: "/home/mc/.ssh/id_ed25519"

api:
  listen: "0.0.0.0:9000"
  token: "s3cret"
  rate_limit: 10

watch: true
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)

	// Schedule
	assert.Equal(t, 30*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, 10*time.Second, cfg.Schedule.Warning)
	assert.Equal(t, "/mnt/backups", cfg.Backup.Path)

	// Retention
	assert.Equal(t, 24, cfg.Retention.MaxBackups)
	assert.Equal(t, 7, cfg.Retention.MaxAgeDays)

	// Worlds keep order and case
	assert.Equal(t, []models.DataStore{
		{Name: "world", Enabled: true},
		{Name: "world_nether", Enabled: false},
		{Name: "World_The_End", Enabled: true},
	}, cfg.Worlds)
	assert.Equal(t, []string{"world", "World_The_End"}, cfg.IncludedStores())

	// Host
	assert.Equal(t, "/srv/minecraft", cfg.Host.DataDir)
	assert.Empty(t, cfg.Host.WorldMarker)
	assert.False(t, cfg.Host.ResumeOnStart)
	assert.Equal(t, []string{"mcrcon", "-p", "secret", "save-off"}, cfg.Host.Commands.Pause)
	assert.Equal(t, []string{"mcrcon", "-p", "secret", "say {message}"}, cfg.Host.Commands.Broadcast)

	// Webhook
	require.NotNil(t, cfg.Webhook)
	assert.True(t, cfg.Webhook.Enabled)
	assert.Equal(t, "https://discord.com/api/webhooks/123/abc", cfg.Webhook.URL)

	// SSH
	require.NotNil(t, cfg.SSH)
	assert.Equal(t, "192.168.1.20", cfg.SSH.Host)
	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, "minecraft", cfg.SSH.Username)
	assert.Equal(t, "/home/mc/.ssh/id_ed25519", cfg.SSH.KeyPath)

	// API
	require.NotNil(t, cfg.API)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Listen)
	assert.Equal(t, "s3cret", cfg.API.Token)
	assert.Equal(t, 10, cfg.API.RateLimit)

	assert.True(t, cfg.Watch)
}

func TestParser_LoadReader_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_URL", "https://example.com/hook")
	t.Setenv("TEST_API_TOKEN", "env_token")

	yaml := `
webhook:
  enabled: true
  url: "${TEST_WEBHOOK_URL}"
api:
  token: "$TEST_API_TOKEN"
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", cfg.Webhook.URL)
	assert.Equal(t, "env_token", cfg.API.Token)
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
	assert.Equal(t, DefaultAPIRateLimit, cfg.API.RateLimit)
}

func TestParser_LoadReader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "zero interval",
			yaml:   "backup:\n  interval_seconds: 0\n",
			errMsg: "backup.interval_seconds must be greater than zero",
		},
		{
			name:   "negative warning",
			yaml:   "backup:\n  warning_seconds: -1\n",
			errMsg: "backup.warning_seconds must not be negative",
		},
		{
			name:   "negative max backups",
			yaml:   "cleanup:\n  max_backups: -2\n",
			errMsg: "cleanup.max_backups must not be negative",
		},
		{
			name:   "negative max age",
			yaml:   "cleanup:\n  max_age_days: -2\n",
			errMsg: "cleanup.max_age_days must not be negative",
		},
		{
			name:   "world without name",
			yaml:   "worlds:\n  - enabled: true\n",
			errMsg: "worlds[0].name is required",
		},
		{
			name:   "world with path",
			yaml:   "worlds:\n  - name: ../etc\n",
			errMsg: "must be a plain directory name",
		},
		{
			name:   "duplicate world",
			yaml:   "worlds:\n  - name: world\n  - name: world\n",
			errMsg: `world "world" is listed twice`,
		},
		{
			name:   "world marker with path",
			yaml:   "host:\n  world_marker: region/r.0.0.mca\n",
			errMsg: "host.world_marker must be a file name",
		},
		{
			name:   "webhook enabled without url",
			yaml:   "webhook:\n  enabled: true\n",
			errMsg: "webhook.url is required",
		},
		{
			name:   "webhook bad url",
			yaml:   "webhook:\n  enabled: true\n  url: ftp://example.com\n",
			errMsg: "webhook.url must be an http or https URL",
		},
		{
			name:   "ssh without host",
			yaml:   "ssh:\n  key_path: /root/.ssh/id_rsa\n",
			errMsg: "ssh.host is required",
		},
		{
			name:   "ssh without key",
			yaml:   "ssh:\n  host: mc.local\n",
			errMsg: "ssh.key_path is required",
		},
		{
			name:   "api without token",
			yaml:   "api:\n  listen: 127.0.0.1:9000\n",
			errMsg: "api.token is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().LoadReader(tt.yaml)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParser_LoadReader_WebhookDisabledNeedsNoURL(t *testing.T) {
	cfg, err := NewParser().LoadReader("webhook:\n  enabled: false\n")

	require.NoError(t, err)
	require.NotNil(t, cfg.Webhook)
	assert.False(t, cfg.Webhook.Enabled)
}

func TestParser_LoadReader_SSHDefaults(t *testing.T) {
	cfg, err := NewParser().LoadReader("ssh:\n  host: mc.local\n  key_path: /k\n")

	require.NoError(t, err)
	require.NotNil(t, cfg.SSH)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, "root", cfg.SSH.Username)
}

func TestParser_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backup:\n  path: /data/backups\n"), 0o600))

	cfg, err := NewParser().LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, "/data/backups", cfg.Backup.Path)
}

func TestParser_LoadFile_Missing(t *testing.T) {
	_, err := NewParser().LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestParser_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cleanup:\n  max_backups: 2\n"), 0o600))

	parser := NewParser()
	_, err := parser.LoadFile(path)
	require.NoError(t, err)

	changes := make(chan *models.BackupConfig, 4)
	parser.Watch(func(cfg *models.BackupConfig, err error) {
		if err != nil {
			return
		}
		select {
		case changes <- cfg:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("cleanup:\n  max_backups: 9\n"), 0o600))

	// A rewrite may surface as several events; the last one carries the new content.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Retention.MaxBackups == 9 {
				return
			}
		case <-deadline:
			t.Fatal("no config change observed")
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *models.BackupConfig {
		return &models.BackupConfig{
			Schedule: models.ScheduleSettings{Interval: time.Hour},
			Backup:   models.BackupSettings{Path: "/backups"},
			Host:     models.HostConfig{DataDir: "/srv/minecraft"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *models.BackupConfig) *models.BackupConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil config",
			mutate:  func(*models.BackupConfig) *models.BackupConfig { return nil },
			wantErr: true,
			errMsg:  "configuration is nil",
		},
		{
			name: "zero interval",
			mutate: func(cfg *models.BackupConfig) *models.BackupConfig {
				cfg.Schedule.Interval = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "backup.interval_seconds",
		},
		{
			name: "missing path",
			mutate: func(cfg *models.BackupConfig) *models.BackupConfig {
				cfg.Backup.Path = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "backup.path is required",
		},
		{
			name: "missing data dir",
			mutate: func(cfg *models.BackupConfig) *models.BackupConfig {
				cfg.Host.DataDir = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "host.data_dir is required",
		},
		{
			name: "webhook without url",
			mutate: func(cfg *models.BackupConfig) *models.BackupConfig {
				cfg.Webhook = &models.WebhookConfig{Enabled: true}
				return cfg
			},
			wantErr: true,
			errMsg:  "webhook.url is required",
		},
		{
			name: "api without token",
			mutate: func(cfg *models.BackupConfig) *models.BackupConfig {
				cfg.API = &models.APIConfig{Listen: "127.0.0.1:0"}
				return cfg
			},
			wantErr: true,
			errMsg:  "api.token is required",
		},
		{
			name:    "valid config",
			mutate:  func(cfg *models.BackupConfig) *models.BackupConfig { return cfg },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mutate(valid()))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
