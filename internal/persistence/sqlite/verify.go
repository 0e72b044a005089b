// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Verification modes accepted by VerifyIntegrity.
const (
	ModeQuick = "quick"
	ModeFull  = "full"
)

// VerifyIntegrity checks the database at path for corruption. ModeQuick runs
// PRAGMA quick_check; ModeFull runs integrity_check and additionally reports
// programs or channels whose parent rows are missing. It returns the
// diagnostic rows when problems are found, or nil if healthy.
func VerifyIntegrity(ctx context.Context, path string, mode string) ([]string, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for verification: %w", err)
	}
	defer db.Close()

	pragma := "PRAGMA quick_check;"
	if mode == ModeFull {
		pragma = "PRAGMA integrity_check;"
	}
	results, err := queryStrings(ctx, db, pragma)
	if err != nil {
		return nil, err
	}

	var issues []string
	switch {
	case len(results) == 0:
		issues = append(issues, "no results returned from integrity check")
	case len(results) == 1 && strings.EqualFold(results[0], "ok"):
	default:
		issues = append(issues, results...)
	}
	if mode != ModeFull || len(issues) > 0 {
		return issues, nil
	}

	orphans, err := foreignKeyViolations(ctx, db)
	if err != nil {
		return nil, err
	}
	return orphans, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("integrity pragma failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("failed to scan integrity result row: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	return out, nil
}

// foreignKeyViolations lists rows whose referenced parent does not exist.
// Writers enable foreign keys, so violations mean the file was edited by
// another tool or restored partially.
func foreignKeyViolations(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA foreign_key_check;")
	if err != nil {
		return nil, fmt.Errorf("foreign key check failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key row: %w", err)
		}
		out = append(out, fmt.Sprintf("%s row %d references a missing %s", table, rowid.Int64, parent))
	}
	return out, rows.Err()
}
