// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means ENV and defaults only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) Path() string { return l.configPath }

func (l *Loader) track(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(key, defaultVal string) string {
	return ParseString(l.track(key), defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	return ParseBool(l.track(key), defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	return ParseInt(l.track(key), defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	return ParseDuration(l.track(key), defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	return ParseFloat(l.track(key), defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	return ParseStringList(l.track(key), defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// resolves relative paths against data_dir and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.DBPath = resolvePath(cfg.DataDir, cfg.DBPath)
	cfg.LockFile = resolvePath(cfg.DataDir, cfg.LockFile)
	cfg.XMLTVPath = resolvePath(cfg.DataDir, cfg.XMLTVPath)

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file onto cfg with STRICT parsing. Keys absent from
// the file keep their current value.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) && isUnknownField(typeErr) {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}

	cfg.DataDir = expandEnv(cfg.DataDir)
	cfg.DBPath = expandEnv(cfg.DBPath)
	cfg.XMLTVPath = expandEnv(cfg.XMLTVPath)
	cfg.Cache.Redis.Password = expandEnv(cfg.Cache.Redis.Password)
	return nil
}

func isUnknownField(err *yaml.TypeError) bool {
	for _, msg := range err.Errors {
		if strings.Contains(msg, "field") && strings.Contains(msg, "not found") {
			return true
		}
	}
	return false
}

// mergeEnv applies EITCORR_* overrides (highest priority).
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)
	cfg.DBPath = l.envString("DB_PATH", cfg.DBPath)
	cfg.LockFile = l.envString("LOCK_FILE", cfg.LockFile)
	cfg.XMLTVPath = l.envString("XMLTV_PATH", cfg.XMLTVPath)

	cfg.EIT.SourceID = l.envInt("SOURCE_ID", cfg.EIT.SourceID)
	cfg.EIT.UTCOffset = l.envString("UTC_OFFSET", cfg.EIT.UTCOffset)
	cfg.EIT.GPSLeapSeconds = l.envInt("GPS_LEAP_SECONDS", cfg.EIT.GPSLeapSeconds)
	cfg.EIT.Languages = l.envList("LANGUAGES", cfg.EIT.Languages)
	cfg.EIT.ChunkSize = l.envInt("CHUNK_SIZE", cfg.EIT.ChunkSize)
	cfg.EIT.InsertTimeout = l.envDuration("INSERT_TIMEOUT", cfg.EIT.InsertTimeout)
	cfg.EIT.PendingMaxAge = l.envDuration("PENDING_MAX_AGE", cfg.EIT.PendingMaxAge)

	cfg.Driver.DrainInterval = l.envDuration("DRAIN_INTERVAL", cfg.Driver.DrainInterval)
	cfg.Driver.PruneInterval = l.envDuration("PRUNE_INTERVAL", cfg.Driver.PruneInterval)
	cfg.Driver.ExportInterval = l.envDuration("EXPORT_INTERVAL", cfg.Driver.ExportInterval)
	cfg.Driver.ExportWindow = l.envDuration("EXPORT_WINDOW", cfg.Driver.ExportWindow)
	cfg.Driver.ProgramRetention = l.envDuration("PROGRAM_RETENTION", cfg.Driver.ProgramRetention)

	cfg.Cache.Backend = l.envString("CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = l.envDuration("CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.Redis.Addr = l.envString("REDIS_ADDR", cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = l.envString("REDIS_PASSWORD", cfg.Cache.Redis.Password)
	cfg.Cache.Redis.DB = l.envInt("REDIS_DB", cfg.Cache.Redis.DB)

	cfg.API.Listen = l.envString("LISTEN", cfg.API.Listen)
	cfg.API.RateLimit = l.envInt("RATE_LIMIT", cfg.API.RateLimit)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// resolvePath anchors a relative path in dir. Empty paths stay empty.
func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
