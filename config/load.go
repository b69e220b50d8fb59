package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads an optional YAML config file, expands environment variables
// in it, unmarshals over the defaults, and applies environment overrides.
// An empty path skips the file and uses defaults + environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}
		expanded := ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Recognized environment variable names.
const (
	EnvListenAddr             = "MEKEWE_LISTEN_ADDR"
	EnvRedisURL               = "MEKEWE_REDIS_URL"
	EnvCacheDir               = "PIPELINE_RUNS_CACHE_DIR"
	EnvAbandonedDeletedAfter  = "PIPELINE_ABANDONED_DEFINITION_DELETED_AFTER"
	EnvResultExpiredAfterMin  = "PIPELINE_RESULT_EXPIRED_AFTER_MIN"
	EnvResultDeletedAfterMin  = "PIPELINE_RESULT_DELETED_AFTER_MIN"
	EnvMaxStatisticsAgeDays   = "MAX_STATISTICS_AGE_DAYS"
	EnvMaxFileSizeUploadBytes = "MAX_FILE_SIZE_UPLOAD_LIMIT_BYTES"
	EnvMaxCacheSizeBytes      = "MAX_CACHE_SIZE_BYTES"
	EnvWorkerRestartBudget    = "RESTART_BACKGROUND_WORKER_ON_EXCEPTION_N_TIMES"
	EnvMaxRunsPerHourPerIP    = "MAX_PIPELINE_RUNS_PER_HOUR_PER_IP"
	EnvEngineCommand          = "MEKEWE_ENGINE_COMMAND"
)

// ApplyEnv overrides config values from the recognized environment
// variables. Unset variables leave the current value untouched.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvListenAddr); ok {
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv(EnvRedisURL); ok {
		c.RedisURL = v
	}
	if v, ok := os.LookupEnv(EnvCacheDir); ok {
		c.PipelineRunsCacheDir = v
	}
	if v, ok := os.LookupEnv(EnvEngineCommand); ok {
		c.EngineCommand = v
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{EnvAbandonedDeletedAfter, &c.AbandonedDefinitionDeletedAfterMin},
		{EnvResultExpiredAfterMin, &c.ResultExpiredAfterMin},
		{EnvResultDeletedAfterMin, &c.ResultDeletedAfterMin},
		{EnvMaxStatisticsAgeDays, &c.MaxStatisticsAgeDays},
		{EnvWorkerRestartBudget, &c.WorkerRestartBudget},
		{EnvMaxRunsPerHourPerIP, &c.MaxPipelineRunsPerHourPerIP},
	}
	for _, v := range intVars {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", v.name, raw)
		}
		*v.target = parsed
	}

	int64Vars := []struct {
		name   string
		target *int64
	}{
		{EnvMaxFileSizeUploadBytes, &c.MaxFileSizeUploadLimitBytes},
		{EnvMaxCacheSizeBytes, &c.MaxCacheSizeBytes},
	}
	for _, v := range int64Vars {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", v.name, raw)
		}
		*v.target = parsed
	}

	return nil
}
