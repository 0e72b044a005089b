// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/log"
)

// PerformStartupChecks verifies that the directories the daemon writes to are
// usable before any component is opened.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := checkWritableDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	logger.Debug().Str(log.FieldPath, cfg.DataDir).Msg("data directory is writable")

	if cfg.XMLTVPath != "" {
		dir := filepath.Dir(cfg.XMLTVPath)
		if err := checkWritableDir(dir); err != nil {
			return fmt.Errorf("xmltv directory check failed: %w", err)
		}
	}

	warnTempDataDir(logger, cfg.DataDir)
	return nil
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

func warnTempDataDir(logger zerolog.Logger, dataDir string) {
	tempDir := filepath.Clean(os.TempDir())
	dataDir = filepath.Clean(dataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str(log.FieldEvent, "startup.temp_data_dir").
			Str("data_dir", dataDir).
			Msg("data directory is under temp; the program database may be lost on reboot")
	}
}
