// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/eitcorr/internal/eit"
	"github.com/ManuGH/eitcorr/internal/resilience"
)

// PingChecker reports a dependency reachable through a ping function. A
// failing critical dependency is unhealthy, any other is degraded.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	critical bool
}

func NewPingChecker(name string, ping func(ctx context.Context) error, critical bool) *PingChecker {
	return &PingChecker{name: name, ping: ping, critical: critical}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		status := StatusDegraded
		if c.critical {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// BreakerChecker degrades while the channel lookup breaker is not closed.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch s := c.state(); s {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy}
	default:
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("circuit %s, channel lookups are failing fast", s)}
	}
}

// BacklogChecker degrades when more completed events wait for persistence
// than maxQueued.
type BacklogChecker struct {
	stats     func() eit.Stats
	maxQueued int
}

func NewBacklogChecker(stats func() eit.Stats, maxQueued int) *BacklogChecker {
	return &BacklogChecker{stats: stats, maxQueued: maxQueued}
}

func (c *BacklogChecker) Name() string { return "backlog" }

func (c *BacklogChecker) Check(context.Context) CheckResult {
	st := c.stats()
	msg := fmt.Sprintf("%d queued, %d incomplete, %d unmatched", st.Queued, st.Incomplete, st.Unmatched)
	if c.maxQueued > 0 && st.Queued > c.maxQueued {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// DrainChecker watches the periodic drain. A drain older than maxAge means
// the loop is stuck.
type DrainChecker struct {
	lastRun func() (time.Time, string)
	maxAge  time.Duration
	now     func() time.Time
}

// NewDrainChecker creates a checker over the driver's last drain time and
// last recorded error.
func NewDrainChecker(lastRun func() (time.Time, string), maxAge time.Duration) *DrainChecker {
	return &DrainChecker{lastRun: lastRun, maxAge: maxAge, now: time.Now}
}

func (c *DrainChecker) Name() string { return "drain" }

func (c *DrainChecker) Check(context.Context) CheckResult {
	lastRun, lastError := c.lastRun()

	if lastRun.IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "no drain completed yet"}
	}
	if c.maxAge > 0 && c.now().Sub(lastRun) > c.maxAge {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("last drain %s ago", c.now().Sub(lastRun).Round(time.Second)),
			Error:   lastError,
		}
	}
	if lastError != "" {
		return CheckResult{Status: StatusDegraded, Message: "last job failed", Error: lastError}
	}
	return CheckResult{Status: StatusHealthy}
}

// FileChecker reports on an output file such as the XMLTV guide. A file that
// has not been written yet is degraded, not unhealthy.
type FileChecker struct {
	name string
	path string
}

func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured"}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusDegraded, Message: "not written yet"}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d bytes", info.Size())}
}
