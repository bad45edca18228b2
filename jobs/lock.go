package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Guard lets at most one worker run a given job at a time across processes.
type Guard struct {
	locker  *redislock.Client
	ttl     time.Duration
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewGuard builds a Guard. A nil locker runs every job unguarded.
func NewGuard(locker *redislock.Client, ttl time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{locker: locker, ttl: ttl, metrics: metrics, logger: logger}
}

// Run executes fn while holding the job lock. When another worker holds it,
// the run is skipped and ran is false.
func (g *Guard) Run(ctx context.Context, job string, fn func(context.Context) error) (ran bool, err error) {
	if g == nil || g.locker == nil {
		return true, fn(ctx)
	}
	lock, err := g.locker.Obtain(ctx, shared.JobLockKey(job), g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		g.logger.Info("job already running elsewhere, skipping", slog.String("job", job))
		g.metrics.Skipped(job)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("jobs: obtain lock %s: %w", job, err)
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			g.logger.Warn("job lock release", slog.String("job", job), slog.Any("error", releaseErr))
		}
	}()
	return true, fn(ctx)
}
