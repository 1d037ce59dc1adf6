// Package models contains the data structures used throughout goworld-backup.
package models

import "time"

// BackupConfig holds the complete configuration of the backup daemon.
// A loaded BackupConfig is treated as immutable; reloads replace it wholesale.
type BackupConfig struct {
	Schedule  ScheduleSettings
	Backup    BackupSettings
	Retention RetentionPolicy
	Worlds    []DataStore
	Host      HostConfig
	Webhook   *WebhookConfig // nil if not configured
	SSH       *SSHConfig     // nil if host commands run locally
	API       *APIConfig     // nil if the admin API is disabled
	Watch     bool           // reload the config file when it changes
}

// ScheduleSettings controls how often cycles run and how long players are warned.
type ScheduleSettings struct {
	Interval time.Duration
	Warning  time.Duration
}

// BackupSettings holds archive output settings.
type BackupSettings struct {
	Path string // directory receiving backup_*.zip files
}

// RetentionPolicy defines which archives are kept. Zero disables a limit.
type RetentionPolicy struct {
	MaxBackups int
	MaxAgeDays int
}

// Enabled reports whether any retention limit is active.
func (p RetentionPolicy) Enabled() bool {
	return p.MaxBackups > 0 || p.MaxAgeDays > 0
}

// DataStore is a world directory managed by the host.
type DataStore struct {
	Name    string
	Enabled bool // included in backups
}

// APIConfig holds the admin HTTP API configuration.
type APIConfig struct {
	Listen    string
	Token     string
	RateLimit int // requests per minute per client IP
}

// IncludedStores returns the names of the stores included in backups, in configured order.
func (c BackupConfig) IncludedStores() []string {
	names := make([]string, 0, len(c.Worlds))
	for _, w := range c.Worlds {
		if w.Enabled {
			names = append(names, w.Name)
		}
	}
	return names
}
