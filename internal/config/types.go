// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration with precedence
// ENV > YAML file > defaults and hot-reloads the file on change.
package config

import "time"

// AppConfig is the fully resolved configuration.
type AppConfig struct {
	DataDir    string `yaml:"data_dir"`
	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`
	DBPath     string `yaml:"db_path"`
	LockFile   string `yaml:"lock_file"`
	XMLTVPath  string `yaml:"xmltv_path"`

	EIT       EITConfig       `yaml:"eit"`
	Driver    DriverConfig    `yaml:"driver"`
	Cache     CacheConfig     `yaml:"cache"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is injected from the binary and never read from file.
	Version string `yaml:"-"`
}

// EITConfig tunes the correlation engine.
type EITConfig struct {
	SourceID int `yaml:"source_id"`
	// UTCOffset is "Auto", "None" or a signed "HHMM" / "HH MM" / "HH:MM".
	UTCOffset      string        `yaml:"utc_offset"`
	GPSLeapSeconds int           `yaml:"gps_leap_seconds"`
	Languages      []string      `yaml:"languages"`
	ChunkSize      int           `yaml:"chunk_size"`
	InsertTimeout  time.Duration `yaml:"insert_timeout"`
	PendingMaxAge  time.Duration `yaml:"pending_max_age"`
	ATSCFixups     []ATSCFixup   `yaml:"atsc_fixups"`
}

// ATSCFixup assigns fixup flags to one ATSC virtual channel.
type ATSCFixup struct {
	Major int    `yaml:"major"`
	Minor int    `yaml:"minor"`
	Fixup string `yaml:"fixup"` // e.g. "pbs" or "generic_dvb|subtitle"
}

type DriverConfig struct {
	DrainInterval  time.Duration `yaml:"drain_interval"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
	ExportInterval time.Duration `yaml:"export_interval"` // 0 disables export
	ExportWindow   time.Duration `yaml:"export_window"`
	// ProgramRetention keeps ended programs this long. 0 keeps them forever.
	ProgramRetention time.Duration `yaml:"program_retention"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory|redis
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client IP. 0 disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc|http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:    "/var/lib/eitcorr",
		LogLevel:   "info",
		LogService: "eitcorr",
		DBPath:     "eit.db",
		LockFile:   "eitcorr.lock",
		EIT: EITConfig{
			UTCOffset:      "Auto",
			GPSLeapSeconds: 18,
			ChunkSize:      20,
			InsertTimeout:  time.Second,
			PendingMaxAge:  3 * time.Hour,
		},
		Driver: DriverConfig{
			DrainInterval:    2 * time.Second,
			PruneInterval:    5 * time.Minute,
			ExportWindow:     14 * 24 * time.Hour,
			ProgramRetention: 24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     10 * time.Minute,
		},
		API: APIConfig{
			Listen:    ":8089",
			RateLimit: 600,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
