// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// LogLevel is a zerolog level name accepted in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevels = []LogLevel{LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}

// ErrInvalidLogLevel is wrapped by ParseLogLevel failures.
var ErrInvalidLogLevel = errors.New("invalid log level (must be: trace, debug, info, warn, error)")

func (l LogLevel) IsValid() bool { return slices.Contains(logLevels, l) }

func (l LogLevel) String() string { return string(l) }

// ParseLogLevel normalises case and surrounding space before checking s.
func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
	return level, nil
}
