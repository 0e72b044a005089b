// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrAlreadyRunning is returned when another daemon holds the data dir lock.
	ErrAlreadyRunning = errors.New("another eitcorr instance holds the lock")

	// ErrMissingDeps is returned when an App is created without dependencies.
	ErrMissingDeps = errors.New("dependencies are required")
)
