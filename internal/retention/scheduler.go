// Package retention prunes archived ticks once at start and then every
// UTC midnight.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes archived rows older than the cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type MidnightPruner struct {
	Pruner    Pruner
	Retention time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

// Start runs once immediately, then at every UTC midnight until ctx is done.
func (m *MidnightPruner) Start(ctx context.Context) {
	go func() {
		m.RunOnce(ctx)

		for {
			timer := time.NewTimer(UntilNextMidnight(m.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				m.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce prunes rows older than the retention window and returns how
// many were removed.
func (m *MidnightPruner) RunOnce(ctx context.Context) int64 {
	cutoff := m.now().Add(-m.Retention)

	pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := m.Pruner.DeleteOlderThan(pruneCtx, cutoff)
	if err != nil {
		m.Logger.Warn("archive retention failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}
	m.Logger.Info("archive retention applied", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n
}

func (m *MidnightPruner) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// UntilNextMidnight is the time left until the next UTC midnight.
func UntilNextMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Sub(now)
}
