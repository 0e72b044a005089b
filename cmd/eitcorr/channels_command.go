// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/lineup"
	"github.com/ManuGH/eitcorr/internal/persistence/sqlite"
)

func newChannelsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage the channel lineup used for guide matching",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Create or update channels from a YAML lineup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *sqlite.Store) error {
				return importLineup(cmd.Context(), cmd.OutOrStdout(), store, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List provisioned channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *sqlite.Store) error {
				return listChannels(cmd.Context(), cmd.OutOrStdout(), store)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "guide CHANID on|off",
		Short: "Enable or disable broadcast guide data for a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid channel id %q", args[0])
			}
			var use bool
			switch args[1] {
			case "on":
				use = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			return withStore(ctx, func(store *sqlite.Store) error {
				return store.SetUseOnAirGuide(cmd.Context(), uint32(id), use)
			})
		},
	})

	return cmd
}

// withStore opens the configured database without the engine or cache.
func withStore(ctx *commandContext, fn func(*sqlite.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return openStore(cfg, fn)
}

func openStore(cfg config.AppConfig, fn func(*sqlite.Store) error) error {
	store, err := sqlite.NewStore(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func importLineup(ctx context.Context, out io.Writer, store lineup.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open lineup: %w", err)
	}
	defer f.Close()

	l, err := lineup.Decode(f)
	if err != nil {
		return err
	}
	n, err := lineup.Apply(ctx, store, l)
	if err != nil {
		return fmt.Errorf("apply lineup after %d channels: %w", n, err)
	}
	_, _ = fmt.Fprintf(out, "Provisioned %d channels\n", n)
	return nil
}

func listChannels(ctx context.Context, out io.Writer, store *sqlite.Store) error {
	chans, err := store.Channels(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(chans))
	for _, ch := range chans {
		atsc, dvb := "-", "-"
		if ch.Major != 0 {
			atsc = fmt.Sprintf("%d.%d", ch.Major, ch.Minor)
		}
		if ch.MplexID != 0 {
			dvb = fmt.Sprintf("%d/%d/%d", ch.NetworkID, ch.TransportID, ch.ServiceID)
		}
		guide := "off"
		if ch.UseOnAirGuide {
			guide = "on"
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(ch.ChanID), 10),
			strconv.FormatUint(uint64(ch.SourceID), 10),
			atsc, dvb, ch.CallSign, ch.Name, guide,
		})
	}
	_, err = fmt.Fprintln(out, renderTable(
		[]string{"Chanid", "Source", "ATSC", "DVB", "Callsign", "Name", "Guide"},
		rows,
		[]columnAlignment{alignRight, alignRight},
	))
	return err
}
