// Package config handles mekewe service configuration.
//
// Configuration is loaded from an optional YAML file with ${VAR} and
// ${VAR:-default} environment expansion, then overridden by the
// recognized environment variables (see ApplyEnv). Unset values fall
// back to the documented defaults.
package config

import (
	"fmt"
	"time"
)

// Defaults for the lifecycle windows and worker behavior.
const (
	DefaultAbandonedDeletedAfterMin = 240
	DefaultResultExpiredAfterMin    = 1440
	DefaultResultDeletedAfterMin    = 1440
	DefaultMaxStatisticsAgeDays     = 365
	DefaultCacheDir                 = "/tmp/mekewe_cache"
	DefaultWorkerRestartBudget      = 3
	DefaultWorkerTickPause          = time.Second
	DefaultMaxPipelineRunsPerHour   = 5
	DefaultListenAddr               = "localhost:8282"
	DefaultEngineCommand            = "metakegg"
)

// Config represents a mekewe.yaml configuration file.
// Environment variables override file values; see ApplyEnv.
type Config struct {
	// ListenAddr is the HTTP server bind address.
	ListenAddr string `yaml:"listen_addr"`

	// RedisURL selects the production redis-backed state store.
	// Empty means the in-process store is used (dev mode).
	// Format: redis://[:password@]host:port[/db]
	RedisURL string `yaml:"redis_url"`

	// PipelineRunsCacheDir is the root of per-ticket input/output storage.
	PipelineRunsCacheDir string `yaml:"pipeline_runs_cache_dir"`

	// AbandonedDefinitionDeletedAfterMin drops uncommitted records older
	// than this many minutes.
	AbandonedDefinitionDeletedAfterMin int `yaml:"pipeline_abandoned_definition_deleted_after"`

	// ResultExpiredAfterMin transitions finished runs to expired and
	// wipes their files after this many minutes.
	ResultExpiredAfterMin int `yaml:"pipeline_result_expired_after_min"`

	// ResultDeletedAfterMin is the additional grace after expiry before
	// the record itself is deleted from the store.
	ResultDeletedAfterMin int `yaml:"pipeline_result_deleted_after_min"`

	// MaxStatisticsAgeDays drops statistic points older than this.
	MaxStatisticsAgeDays int `yaml:"max_statistics_age_days"`

	// MaxFileSizeUploadLimitBytes caps a single upload request body.
	// Zero means unlimited.
	MaxFileSizeUploadLimitBytes int64 `yaml:"max_file_size_upload_limit_bytes"`

	// MaxCacheSizeBytes caps the total cache directory size. An upload
	// pushing past it fails with OutOfStorage. Zero means unlimited.
	MaxCacheSizeBytes int64 `yaml:"max_cache_size_bytes"`

	// WorkerRestartBudget is the number of consecutive worker tick
	// failures tolerated before the worker terminates.
	WorkerRestartBudget int `yaml:"restart_background_worker_on_exception_n_times"`

	// WorkerTickPause is the pause between maintenance ticks.
	WorkerTickPause Duration `yaml:"worker_tick_pause"`

	// MaxPipelineRunsPerHourPerIP is the HTTP boundary rate limit for
	// creating pipeline runs.
	MaxPipelineRunsPerHourPerIP int `yaml:"max_pipeline_runs_per_hour_per_ip"`

	// EngineCommand is the analysis engine binary the worker launches per
	// run. EngineArgs are fixed arguments prepended to every invocation.
	EngineCommand string   `yaml:"engine_command"`
	EngineArgs    []string `yaml:"engine_args"`

	// Client-facing info served at /config and /info-links.
	ClientContactEmail       string       `yaml:"client_contact_email"`
	ClientBugReportEmail     string       `yaml:"client_bug_report_email"`
	ClientTermsAndConditions string       `yaml:"client_terms_and_conditions"`
	ClientEntryText          string       `yaml:"client_entry_text"`
	ClientLinks              []ClientLink `yaml:"client_links"`
}

// ClientLink is one configured entry of the /info-links response.
type ClientLink struct {
	Title string `yaml:"title"`
	Link  string `yaml:"link"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "1s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		ListenAddr:                         DefaultListenAddr,
		PipelineRunsCacheDir:               DefaultCacheDir,
		AbandonedDefinitionDeletedAfterMin: DefaultAbandonedDeletedAfterMin,
		ResultExpiredAfterMin:              DefaultResultExpiredAfterMin,
		ResultDeletedAfterMin:              DefaultResultDeletedAfterMin,
		MaxStatisticsAgeDays:               DefaultMaxStatisticsAgeDays,
		WorkerRestartBudget:                DefaultWorkerRestartBudget,
		WorkerTickPause:                    Duration{DefaultWorkerTickPause},
		MaxPipelineRunsPerHourPerIP:        DefaultMaxPipelineRunsPerHour,
		EngineCommand:                      DefaultEngineCommand,
	}
}

// AbandonedAfter returns the abandonment window as a duration.
func (c *Config) AbandonedAfter() time.Duration {
	return time.Duration(c.AbandonedDefinitionDeletedAfterMin) * time.Minute
}

// ExpiredAfter returns the expiry window as a duration.
func (c *Config) ExpiredAfter() time.Duration {
	return time.Duration(c.ResultExpiredAfterMin) * time.Minute
}

// DeletedAfter returns the post-expiry deletion grace as a duration.
func (c *Config) DeletedAfter() time.Duration {
	return time.Duration(c.ResultDeletedAfterMin) * time.Minute
}

// Validate checks value ranges that would otherwise fail deep inside the
// worker or the state manager.
func (c *Config) Validate() error {
	if c.PipelineRunsCacheDir == "" {
		return fmt.Errorf("pipeline_runs_cache_dir must not be empty")
	}
	if c.ResultExpiredAfterMin < 0 || c.ResultDeletedAfterMin < 0 || c.AbandonedDefinitionDeletedAfterMin < 0 {
		return fmt.Errorf("lifecycle windows must not be negative")
	}
	if c.WorkerRestartBudget < 0 {
		return fmt.Errorf("restart_background_worker_on_exception_n_times must be >= 0, got %d", c.WorkerRestartBudget)
	}
	if c.MaxCacheSizeBytes < 0 || c.MaxFileSizeUploadLimitBytes < 0 {
		return fmt.Errorf("size limits must not be negative")
	}
	return nil
}
