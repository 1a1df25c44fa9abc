package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moneta-labs/moneta/errors"
)

// MaxReapedPerSweep limits how many stale runs one sweep settles.
// Anything left over is picked up by the next sweep.
const MaxReapedPerSweep = 100

// ReaperConfig contains configuration for the stuck-run reaper
type ReaperConfig struct {
	Interval   time.Duration // How often to sweep for stale running runs
	StuckAfter time.Duration // How long a running run may go without updates; zero disables the reaper
}

// DefaultReaperConfig returns sensible defaults
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:   30 * time.Second,
		StuckAfter: 5 * time.Minute, // Longer than the execution deadline, so live runs settle first
	}
}

// Reaper fails runs stuck in running longer than the configured
// deadline. It backstops executions whose owning process died without
// a restart: normal executions settle themselves, and restart recovery
// settles the rest, so the reaper only ever sees true orphans.
type Reaper struct {
	store            *Store
	events           *Notifier
	cfg              ReaperConfig
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	logger           *zap.SugaredLogger
	mu               sync.Mutex
	lastSweepAt      time.Time
	sweepsSinceStart int64
	reapedTotal      int
}

// NewReaper creates a new stuck-run reaper
func NewReaper(store *Store, events *Notifier, cfg ReaperConfig, logger *zap.SugaredLogger) *Reaper {
	return NewReaperWithContext(context.Background(), store, events, cfg, logger)
}

// NewReaperWithContext creates a reaper with a parent context
func NewReaperWithContext(ctx context.Context, store *Store, events *Notifier, cfg ReaperConfig, logger *zap.SugaredLogger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReaperConfig().Interval
	}

	reaperCtx, cancel := context.WithCancel(ctx)

	return &Reaper{
		store:  store,
		events: events,
		cfg:    cfg,
		ctx:    reaperCtx,
		cancel: cancel,
		logger: logger,
	}
}

// Start begins the sweep loop. A zero StuckAfter disables the reaper.
func (r *Reaper) Start() {
	if r.cfg.StuckAfter <= 0 {
		r.logger.Infow("Run reaper disabled")
		return
	}

	r.wg.Add(1)
	go r.run()
	r.logger.Infow("Run reaper started",
		"interval", r.cfg.Interval,
		"stuck_after", r.cfg.StuckAfter)
}

// Stop gracefully stops the reaper
func (r *Reaper) Stop() {
	r.cancel()
	r.wg.Wait()
	r.logger.Infow("Run reaper stopped")
}

// run is the main sweep loop
func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case sweepTime := <-ticker.C:
			r.mu.Lock()
			r.lastSweepAt = sweepTime
			r.sweepsSinceStart++
			r.mu.Unlock()

			if err := r.sweep(); err != nil {
				// Don't spam logs - sweep errors surface at warn level
				r.logger.Warnw("Run reaper sweep error", "error", err)
			}
		}
	}
}

// sweep fails every running run whose last update is older than the
// stuck deadline. The conditional transition protects runs that settle
// between the listing and the write.
func (r *Reaper) sweep() error {
	stale, err := r.store.ListStaleRunning(r.cfg.StuckAfter, MaxReapedPerSweep)
	if err != nil {
		return errors.Wrap(err, "failed to list stale running runs")
	}

	if len(stale) == 0 {
		return nil
	}

	reaped := 0
	for _, run := range stale {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		cause := fmt.Sprintf("analysis stalled, no progress for %s", r.cfg.StuckAfter)
		if err := r.store.Fail(run.ID, cause); err != nil {
			if IsInvalidTransition(err) {
				// Settled in the gap between listing and write - leave it be
				r.logger.Debugw("Stale run settled before reaping",
					"run_id", run.ID)
				continue
			}
			r.logger.Warnw("Failed to reap stale run",
				"run_id", run.ID,
				"error", err)
			continue
		}

		run.Fail(errors.New(cause))
		if r.events != nil {
			r.events.Publish(run)
		}
		reaped++

		r.logger.Warnw("Reaped stale run",
			"run_id", run.ID,
			"ticker", run.Ticker,
			"stuck_after", r.cfg.StuckAfter)
	}

	if reaped > 0 {
		r.mu.Lock()
		r.reapedTotal += reaped
		r.mu.Unlock()
		r.logger.Infow("Run reaper sweep complete", "reaped", reaped, "stale", len(stale))
	}

	return nil
}

// GetStats returns reaper statistics
func (r *Reaper) GetStats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]interface{}{
		"last_sweep_at":      r.lastSweepAt,
		"sweeps_since_start": r.sweepsSinceStart,
		"reaped_total":       r.reapedTotal,
		"interval":           r.cfg.Interval,
		"stuck_after":        r.cfg.StuckAfter,
	}
}
