// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/daemon"
	"github.com/ManuGH/eitcorr/internal/ingest"
	"github.com/ManuGH/eitcorr/internal/jobs"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		perSecond float64
		export    bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replay captured JSON-lines fragments into the store",
		Long: `Replay reads one fragment per line ("-" for stdin). Each line carries a
"kind" of atsc, ett or dvb and the fields of the matching ingest request.
Completed events are persisted before the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDeps(cmd.Context(), func(cfg config.AppConfig, deps *daemon.Deps) error {
				return runImport(cmd.Context(), cmd.OutOrStdout(), cfg, deps, args[0], perSecond, export)
			})
		},
	}
	cmd.Flags().Float64Var(&perSecond, "rate", 0, "Maximum fragments per second (0 = unlimited)")
	cmd.Flags().BoolVar(&export, "export", false, "Write the XMLTV guide after importing")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, cfg config.AppConfig, deps *daemon.Deps, path string, perSecond float64, export bool) error {
	lock := flock.New(cfg.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", daemon.ErrAlreadyRunning, lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}

	stats, err := ingest.Replay(ctx, r, deps.Engine, limiter)
	if err != nil {
		return err
	}

	driver := daemon.NewDriver(cfg, deps)
	inserted, err := driver.Drain(ctx)
	if err != nil {
		return fmt.Errorf("persist events: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Lines:     %s\n", humanize.Comma(int64(stats.Lines)))
	_, _ = fmt.Fprintf(out, "Applied:   %s\n", humanize.Comma(int64(stats.Applied)))
	_, _ = fmt.Fprintf(out, "Malformed: %s\n", humanize.Comma(int64(stats.Malformed)))
	_, _ = fmt.Fprintf(out, "Unknown:   %s\n", humanize.Comma(int64(stats.Unknown)))
	_, _ = fmt.Fprintf(out, "Inserted:  %s\n", humanize.Comma(int64(inserted)))
	if pending := deps.Engine.Stats(); pending.Incomplete+pending.Unmatched > 0 {
		_, _ = fmt.Fprintf(out, "Pending:   %d without counterpart, %d unmatched texts\n",
			pending.Incomplete, pending.Unmatched)
	}

	if !export {
		return nil
	}
	res, err := driver.Export(ctx)
	if err != nil {
		if errors.Is(err, jobs.ErrExportDisabled) {
			return fmt.Errorf("export requires xmltv_path")
		}
		return err
	}
	_, _ = fmt.Fprintf(out, "Exported:  %s programmes on %s channels to %s\n",
		humanize.Comma(int64(res.Programmes)), humanize.Comma(int64(res.Channels)), cfg.XMLTVPath)
	return nil
}
