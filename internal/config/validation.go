// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"math"

	"golang.org/x/text/language"

	"github.com/ManuGH/eitcorr/internal/eit"
	"github.com/ManuGH/eitcorr/internal/validate"
)

// Validate checks a resolved configuration and reports every failure at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("data_dir", cfg.DataDir, false)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("log_level", err.Error(), cfg.LogLevel)
	}
	v.NotEmpty("db_path", cfg.DBPath)
	v.FileParent("lock_file", cfg.LockFile)
	v.FileParent("xmltv_path", cfg.XMLTVPath)

	validateEIT(v, cfg.EIT)

	v.PositiveDuration("driver.drain_interval", cfg.Driver.DrainInterval)
	v.PositiveDuration("driver.prune_interval", cfg.Driver.PruneInterval)
	if cfg.Driver.ExportInterval < 0 {
		v.AddError("driver.export_interval", "duration cannot be negative", cfg.Driver.ExportInterval)
	}
	if cfg.Driver.ProgramRetention < 0 {
		v.AddError("driver.program_retention", "duration cannot be negative", cfg.Driver.ProgramRetention)
	}
	if cfg.Driver.ExportInterval > 0 {
		v.NotEmpty("xmltv_path", cfg.XMLTVPath)
		v.PositiveDuration("driver.export_window", cfg.Driver.ExportWindow)
	}

	v.OneOf("cache.backend", cfg.Cache.Backend, []string{"memory", "redis"})
	v.PositiveDuration("cache.ttl", cfg.Cache.TTL)
	if cfg.Cache.Backend == "redis" {
		v.Endpoint("cache.redis.addr", cfg.Cache.Redis.Addr)
		v.Range("cache.redis.db", cfg.Cache.Redis.DB, 0, 15)
	}

	v.ListenAddr("api.listen", cfg.API.Listen)
	v.NonNegative("api.rate_limit", cfg.API.RateLimit)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.Endpoint("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}

func validateEIT(v *validate.Validator, c EITConfig) {
	if c.SourceID < 0 || int64(c.SourceID) > math.MaxUint32 {
		v.AddError("eit.source_id", "must fit an unsigned 32-bit id", c.SourceID)
	}
	v.Custom("eit.utc_offset", c.UTCOffset, func(val interface{}) error {
		_, err := eit.ParseUTCOffset(val.(string), nil)
		return err
	})
	v.Range("eit.gps_leap_seconds", c.GPSLeapSeconds, 0, 60)
	for i, lang := range c.Languages {
		if _, err := language.Parse(lang); err != nil {
			v.AddError(fmt.Sprintf("eit.languages[%d]", i), "unknown language code", lang)
		}
	}
	v.Positive("eit.chunk_size", c.ChunkSize)
	v.PositiveDuration("eit.insert_timeout", c.InsertTimeout)
	v.PositiveDuration("eit.pending_max_age", c.PendingMaxAge)
	for i, f := range c.ATSCFixups {
		field := fmt.Sprintf("eit.atsc_fixups[%d]", i)
		v.Range(field+".major", f.Major, 1, 99)
		v.Range(field+".minor", f.Minor, 0, 999)
		if _, ok := eit.ParseFixup(f.Fixup); !ok {
			v.AddError(field+".fixup", "unknown fixup name", f.Fixup)
		}
	}
}

// UTCOffsetSeconds resolves eit.utc_offset against the host clock.
func (c EITConfig) UTCOffsetSeconds() (int, error) {
	return eit.ParseUTCOffset(c.UTCOffset, nil)
}

// FixupMap returns the configured ATSC fixups keyed by channel. Entries
// that fail to parse are skipped; Validate reports them.
func (c EITConfig) FixupMap() map[eit.ATSCKey]eit.Fixup {
	out := make(map[eit.ATSCKey]eit.Fixup, len(c.ATSCFixups))
	for _, f := range c.ATSCFixups {
		fix, ok := eit.ParseFixup(f.Fixup)
		if !ok {
			continue
		}
		out[eit.ATSCKey{Major: uint16(f.Major), Minor: uint16(f.Minor)}] = fix
	}
	return out
}
