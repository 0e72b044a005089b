// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sqlite holds the channel and program store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Config defines SQLite connection parameters.
type Config struct {
	BusyTimeout time.Duration
	// MaxOpenConns bounds the pool. WAL lets lookups and exports read while
	// one connection writes a chunk.
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// CacheSizeKiB sets the per-connection page cache; 0 keeps the SQLite default.
	CacheSizeKiB int
}

// DefaultConfig returns the configuration used by the daemon and the CLI.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    8,
		ConnMaxLifetime: time.Hour,
		CacheSizeKiB:    8 << 10,
	}
}

// dsn renders the connection string. PRAGMAs in the DSN apply to every
// connection in the pool; _txlock=immediate takes the write lock on BEGIN so
// a chunk insert never fails half way on lock upgrade.
func (c Config) dsn(dbPath string) string {
	pragmas := []string{
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()),
		"synchronous(NORMAL)",
		"foreign_keys(ON)",
	}
	if c.CacheSizeKiB > 0 {
		pragmas = append(pragmas, fmt.Sprintf("cache_size(-%d)", c.CacheSizeKiB))
	}

	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(dbPath)
	for i, p := range pragmas {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	b.WriteString("&_txlock=immediate")
	return b.String()
}

// Open initializes a connection pool and verifies the file can be opened.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout+time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}
