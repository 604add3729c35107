package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/jokebox/internal/metrics"
	"github.com/sakif/jokebox/internal/middleware"
	"github.com/sakif/jokebox/internal/service"
)

// limiterIdle is how long a rate-limit bucket may sit unused before it is
// forgotten. Any bucket idle this long has refilled completely anyway.
const limiterIdle = 10 * time.Minute

// janitor does the periodic housekeeping: expired sessions, jokes stuck in
// pending, idle rate-limit buckets. A failed sweep is logged and retried on
// the next tick.
type janitor struct {
	sessions       *service.SessionManager
	jokes          *service.JokeService
	limiter        *middleware.RateLimiter
	interval       time.Duration
	pendingTimeout time.Duration
	logger         *slog.Logger
}

func (j *janitor) run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *janitor) sweep(ctx context.Context) {
	if n, err := j.sessions.DeleteExpiredSessions(ctx); err != nil {
		j.logger.Error("janitor: pruning sessions", slog.String("error", err.Error()))
	} else if n > 0 {
		metrics.SessionsPruned.Add(float64(n))
		j.logger.Info("janitor: pruned expired sessions", slog.Int64("count", n))
	}

	if n, err := j.jokes.ExpireStale(ctx, j.pendingTimeout); err != nil {
		j.logger.Error("janitor: expiring pending jokes", slog.String("error", err.Error()))
	} else if n > 0 {
		j.logger.Info("janitor: marked stale pending jokes failed", slog.Int("count", n))
	}

	if j.limiter != nil {
		if n := j.limiter.Prune(limiterIdle); n > 0 {
			j.logger.Debug("janitor: pruned rate-limit buckets", slog.Int("count", n))
		}
	}
}
