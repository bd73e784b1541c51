// Package jobs schedules background maintenance of cached rental figures.
package jobs

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher recomputes the cached cost and debt of every active rental and
// the balances of their customers.
type Refresher interface {
	RefreshActive(ctx context.Context) (int, error)
}

// Scheduler runs the outstanding-cost refresh on a cron schedule. Outstanding
// cost grows every day a rental stays open, so cached totals drift without it.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	ctx       context.Context
	timeout   time.Duration
}

// NewScheduler creates a scheduler. Jobs run with ctx, which should carry the
// application logger, and are bounded by timeout.
func NewScheduler(ctx context.Context, refresher Refresher, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		refresher: refresher,
		ctx:       ctx,
		timeout:   timeout,
	}
}

// Register adds the refresh job. spec uses the six-field cron format with
// seconds, e.g. "0 5 0 * * *" for 00:05 UTC daily.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { _ = s.RunRefresh(s.ctx) }); err != nil {
		return errors.Wrapf(err, "register refresh job %q", spec)
	}
	return nil
}

// RunRefresh performs one refresh and logs the outcome.
func (s *Scheduler) RunRefresh(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	lg := zctx.From(ctx)
	start := time.Now()
	n, err := s.refresher.RefreshActive(ctx)
	if err != nil {
		lg.Error("Refresh of active rentals failed", zap.Error(err))
		return err
	}
	lg.Info("Refreshed active rentals",
		zap.Int("rentals", n),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
