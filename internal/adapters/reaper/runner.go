// Package reaper periodically purges expired server-side credential slots.
package reaper

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/peopleops/hrportal/internal/observability/metrics"
)

// Purger deletes expired credential slots. postgres.SlotStore implements it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Purger   Purger
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  metrics.Sink
}

// Runner drives the purge loop.
type Runner struct {
	purger   Purger
	interval time.Duration
	logger   *slog.Logger
	metrics  metrics.Sink
}

// NewRunner validates opts and builds a Runner. Interval defaults to 15m.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Purger == nil {
		return nil, errors.New("purger is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		purger:   opts.Purger,
		interval: opts.Interval,
		logger:   opts.Logger.With("component", "slot_reaper"),
		metrics:  opts.Metrics,
	}, nil
}

// Run purges immediately after a jittered delay, then on every tick, until ctx ends.
// Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting credential slot reaper", "interval", r.interval)

	r.waitWithJitter(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.PurgeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "credential slot reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce runs a single purge and reports how many slots were removed.
func (r *Runner) PurgeOnce(ctx context.Context) int64 {
	start := time.Now()
	n, err := r.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.WarnContext(ctx, "credential slot purge failed", "error", err)
		}
		if r.metrics != nil {
			r.metrics.Count("credential.slots.purge", 1, map[string]string{"result": metrics.ResultError})
		}
		return 0
	}

	if n > 0 {
		r.logger.DebugContext(ctx, "purged expired credential slots", "count", n)
	}
	if r.metrics != nil {
		r.metrics.Count("credential.slots.purge", 1, map[string]string{"result": metrics.ResultSuccess})
		r.metrics.Timing("credential.slots.purge.duration", time.Since(start), nil)
	}
	return n
}

// waitWithJitter sleeps up to 10% of the interval so replicas do not purge in lockstep.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
