// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/daemon"
	"github.com/ManuGH/eitcorr/internal/health"
	applog "github.com/ManuGH/eitcorr/internal/log"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingest API, drain loop and guide export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx)
		},
	}
}

func runDaemon(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := applog.WithComponent("main")
	logger.Info().
		Str(applog.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("data_dir", cfg.DataDir).
		Str("listen", cfg.API.Listen).
		Msg("starting eitcorr")

	if err := health.PerformStartupChecks(cfg); err != nil {
		return err
	}

	deps, err := daemon.Bootstrap(signalCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(context.WithoutCancel(signalCtx)); err != nil {
			logger.Warn().Err(err).Str(applog.FieldEvent, "shutdown.close_failed").Msg("failed to close components")
		}
	}()

	app, err := daemon.NewApp(config.NewHolder(cfg, ctx.loader), deps)
	if err != nil {
		return err
	}

	err = app.Run(signalCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str(applog.FieldEvent, "shutdown.error").Msg("daemon stopped with error")
		return err
	}
	logger.Info().Str(applog.FieldEvent, "shutdown.complete").Msg("daemon stopped")
	return nil
}
