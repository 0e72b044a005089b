// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/daemon"
	applog "github.com/ManuGH/eitcorr/internal/log"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	loader     *config.Loader
	config     config.AppConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once and reconfigures the global
// logger from it.
func (c *commandContext) ensureConfig() (config.AppConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.loader = config.NewLoader(path, version)
		cfg, err := c.loader.Load()
		if err != nil {
			c.configErr = err
			return
		}
		applog.Configure(applog.Config{
			Level:   cfg.LogLevel,
			Output:  os.Stderr,
			Service: cfg.LogService,
			Version: version,
		})
		c.config = cfg
	})
	return c.config, c.configErr
}

// withDeps bootstraps the components for a one-shot command and closes them
// when fn returns.
func (c *commandContext) withDeps(ctx context.Context, fn func(config.AppConfig, *daemon.Deps) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	deps, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cfg, deps)
}
