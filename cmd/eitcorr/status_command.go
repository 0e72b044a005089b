// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/persistence/sqlite"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarise the program database and guide export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return openStore(cfg, func(store *sqlite.Store) error {
				return printStatus(cmd.Context(), cmd.OutOrStdout(), cfg, store, time.Now())
			})
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, cfg config.AppConfig, store *sqlite.Store, now time.Time) error {
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}

	rows := [][]string{
		{"Database", cfg.DBPath},
		{"Channels", fmt.Sprintf("%s (%s guided)", humanize.Comma(int64(counts.Channels)), humanize.Comma(int64(counts.Guided)))},
		{"Multiplexes", humanize.Comma(int64(counts.Multiplexes))},
		{"Programs", humanize.Comma(int64(counts.Programs))},
	}
	if counts.Programs > 0 {
		rows = append(rows,
			[]string{"First start", fmt.Sprintf("%s (%s)", counts.FirstStart.Format(time.RFC3339), humanize.RelTime(counts.FirstStart, now, "ago", "from now"))},
			[]string{"Last end", fmt.Sprintf("%s (%s)", counts.LastEnd.Format(time.RFC3339), humanize.RelTime(counts.LastEnd, now, "ago", "from now"))},
		)
	}
	if cfg.XMLTVPath != "" {
		guide := "not written yet"
		if info, err := os.Stat(cfg.XMLTVPath); err == nil {
			guide = fmt.Sprintf("%s, %s, updated %s", cfg.XMLTVPath,
				humanize.IBytes(uint64(info.Size())), humanize.RelTime(info.ModTime(), now, "ago", "from now"))
		}
		rows = append(rows, []string{"XMLTV", guide})
	}

	_, err = fmt.Fprintln(out, renderTable([]string{"Item", "Value"}, rows, nil))
	return err
}
