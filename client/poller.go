package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/moneta-labs/moneta/errors"
)

// The reference polling protocol: one poll every 2 seconds, giving up
// after 90 attempts (a 3-minute observation window).
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 90
)

// PollConfig controls the polling protocol
type PollConfig struct {
	Interval time.Duration `json:"interval"` // Delay between polls
	Attempts int           `json:"attempts"` // Attempt budget before giving up
}

// DefaultPollConfig returns the reference protocol values
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: DefaultPollInterval,
		Attempts: DefaultPollAttempts,
	}
}

// Poller waits for runs to settle by polling the query surface at a
// fixed interval under a bounded attempt budget. Exhausting the budget
// is a timeout, distinct from observing a failed run: a timeout means
// the poller stopped watching, not that the run failed.
type Poller struct {
	client *Client
	cfg    PollConfig
	logger *zap.SugaredLogger
}

// NewPoller creates a poller; zero config fields fall back to the
// reference protocol values.
func NewPoller(client *Client, cfg PollConfig, logger *zap.SugaredLogger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultPollAttempts
	}

	return &Poller{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Wait polls the run until it reaches a terminal state and returns the
// final snapshot; failed runs are returned for the caller to inspect,
// not surfaced as errors. Transient transport errors burn an attempt
// rather than aborting the wait; an unknown run aborts immediately
// since later polls cannot make it appear.
func (p *Poller) Wait(ctx context.Context, runID string) (*Run, error) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		snapshot, err := p.client.GetRun(ctx, runID)
		switch {
		case err == nil:
			if snapshot.Status.Terminal() {
				return snapshot, nil
			}
			p.logger.Debugw("Run not yet terminal",
				"run_id", runID,
				"status", snapshot.Status,
				"attempt", attempt,
				"attempts", p.cfg.Attempts)

		case errors.IsNotFoundError(err):
			return nil, err

		case ctx.Err() != nil:
			return nil, errors.Wrap(ctx.Err(), "polling cancelled")

		default:
			p.logger.Warnw("Poll attempt failed",
				"run_id", runID,
				"attempt", attempt,
				"attempts", p.cfg.Attempts,
				"error", err)
		}

		if attempt >= p.cfg.Attempts {
			return nil, errors.Wrap(errors.ErrTimeout,
				errors.Newf("run %s still not terminal after %d polls", runID, p.cfg.Attempts).Error())
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "polling cancelled")
		case <-ticker.C:
		}
	}
}
