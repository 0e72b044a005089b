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
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/eitcorr/internal/persistence/sqlite"
)

var errCorrupt = errors.New("database integrity check failed")

func newStorageCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect the program database",
	}

	var (
		path string
		mode string
	)
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check database integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				path = cfg.DBPath
			}
			return verifyStorage(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), path, mode)
		},
	}
	verify.Flags().StringVar(&path, "path", "", "Path to the SQLite database (defaults to the configured db_path)")
	verify.Flags().StringVar(&mode, "mode", sqlite.ModeQuick, "Verification mode: quick or full")
	cmd.AddCommand(verify)

	return cmd
}

func verifyStorage(ctx context.Context, out, errOut io.Writer, path, mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != sqlite.ModeQuick && mode != sqlite.ModeFull {
		return fmt.Errorf("invalid mode %q, use quick or full", mode)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("database %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(errOut, "Verifying integrity of %s (mode: %s)...\n", path, mode)
	issues, err := sqlite.VerifyIntegrity(ctx, path, mode)
	if err != nil {
		return err
	}
	if issues != nil {
		for _, issue := range issues {
			_, _ = fmt.Fprintf(errOut, "  - %s\n", issue)
		}
		return fmt.Errorf("%w: %s", errCorrupt, path)
	}
	_, _ = fmt.Fprintln(out, "Integrity verified: ok")
	return nil
}
