// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	applog "github.com/ManuGH/eitcorr/internal/log"
)

// Holder holds configuration with atomic reloading capability. Reloads are
// triggered by file changes, SIGHUP or a direct call to Reload.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	// DebounceInterval coalesces bursts of file events. Set before Watch.
	DebounceInterval time.Duration

	reloadMu        sync.RWMutex
	reloadListeners []chan<- AppConfig
}

// NewHolder creates a holder with an already validated initial config.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current:          initial,
		loader:           loader,
		logger:           applog.WithComponent("config"),
		DebounceInterval: 500 * time.Millisecond,
	}
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the configuration. On failure the previous
// configuration stays in effect.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(applog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(applog.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str(applog.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// Watch reloads on SIGHUP and, when a config file is in use, on changes to
// it. It blocks until ctx is cancelled.
func (h *Holder) Watch(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var events <-chan fsnotify.Event
	var errs <-chan error
	path := h.loader.Path()
	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer func() { _ = watcher.Close() }()

		// Watch the directory so editors that replace the file are seen.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("watch config dir: %w", err)
		}
		events, errs = watcher.Events, watcher.Errors
		h.logger.Info().
			Str(applog.FieldEvent, "config.watcher_started").
			Str(applog.FieldPath, path).
			Msg("watching config file for changes")
	} else {
		h.logger.Info().
			Str(applog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
	}

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := func(trigger string) {
		if err := h.Reload(ctx); err != nil {
			h.logger.Error().
				Err(err).
				Str(applog.FieldEvent, "config.auto_reload_failed").
				Str("trigger", trigger).
				Msg("automatic config reload failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(applog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return nil

		case <-hup:
			reload("sighup")

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(applog.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")
			if debounce == nil {
				debounce = time.NewTimer(h.DebounceInterval)
			} else {
				debounce.Reset(h.DebounceInterval)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			reload("file")

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			h.logger.Error().
				Err(err).
				Str(applog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// Sends never block; a full channel misses the update.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *Holder) notifyListeners(newCfg AppConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str(applog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs the reloadable fields that differ.
func (h *Holder) logChanges(old, newCfg AppConfig) {
	if old.EIT.SourceID != newCfg.EIT.SourceID {
		h.logger.Info().
			Int("old", old.EIT.SourceID).
			Int("new", newCfg.EIT.SourceID).
			Msg("config changed: eit.source_id")
	}
	if old.EIT.UTCOffset != newCfg.EIT.UTCOffset {
		h.logger.Info().
			Str("old", old.EIT.UTCOffset).
			Str("new", newCfg.EIT.UTCOffset).
			Msg("config changed: eit.utc_offset")
	}
	if !slices.Equal(old.EIT.Languages, newCfg.EIT.Languages) {
		h.logger.Info().
			Strs("old", old.EIT.Languages).
			Strs("new", newCfg.EIT.Languages).
			Msg("config changed: eit.languages")
	}
	if !slices.Equal(old.EIT.ATSCFixups, newCfg.EIT.ATSCFixups) {
		h.logger.Info().
			Int("old", len(old.EIT.ATSCFixups)).
			Int("new", len(newCfg.EIT.ATSCFixups)).
			Msg("config changed: eit.atsc_fixups")
	}
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: log_level")
	}
	if old.Cache.Redis.Password != newCfg.Cache.Redis.Password {
		h.logger.Info().Str("new", maskSecret(newCfg.Cache.Redis.Password)).Msg("config changed: cache.redis.password")
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***redacted***"
}
