package run

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moneta-labs/moneta/errors"
)

// MaxRecoveredRuns limits how many interrupted or queued runs are
// processed on startup to prevent overwhelming the system after a crash
const MaxRecoveredRuns = 1000

// Config contains configuration for the run orchestrator
type Config struct {
	Deadline      time.Duration `json:"deadline"`       // Max wall time for one analysis execution
	ShutdownGrace time.Duration `json:"shutdown_grace"` // How long Stop waits for in-flight executions
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Deadline:      2 * time.Minute,  // Well under the polling client's 3-minute budget
		ShutdownGrace: 30 * time.Second, // Generous window for terminal writes to land
	}
}

// Orchestrator decouples run submission from execution. Submit returns
// as soon as the run is queued; a goroutine advances it through
// running to a terminal state via conditional store updates, so every
// run settles exactly once no matter how many writers race.
type Orchestrator struct {
	store     *Store
	executor  Executor
	events    *Notifier
	cfg       Config
	parentCtx context.Context // Parent context from which the execution context is derived
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	inFlight  int // Currently executing analyses
	mu        sync.Mutex
}

// NewOrchestrator creates an orchestrator that executes runs through
// the given executor.
func NewOrchestrator(store *Store, executor Executor, cfg Config, logger *zap.SugaredLogger) *Orchestrator {
	return NewOrchestratorWithContext(context.Background(), store, executor, cfg, logger)
}

// NewOrchestratorWithContext creates an orchestrator with a parent
// context. Cancelling the parent cancels every in-flight execution.
func NewOrchestratorWithContext(ctx context.Context, store *Store, executor Executor, cfg Config, logger *zap.SugaredLogger) *Orchestrator {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConfig().Deadline
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultConfig().ShutdownGrace
	}

	runCtx, cancel := context.WithCancel(ctx)

	return &Orchestrator{
		store:     store,
		executor:  executor,
		events:    NewNotifier(),
		cfg:       cfg,
		parentCtx: ctx,
		ctx:       runCtx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Events returns the notifier carrying committed run transitions
func (o *Orchestrator) Events() *Notifier {
	return o.events
}

// InFlight returns the number of currently executing analyses
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Start recovers runs left behind by a previous process.
// Safe to call before the HTTP surface accepts submissions.
func (o *Orchestrator) Start() {
	if err := o.recoverInterruptedRuns(); err != nil {
		o.logger.Warnw("Failed to recover interrupted runs", "error", err)
		// Continue serving even if recovery fails
	}
}

// Stop cancels in-flight executions and waits for their terminal
// writes to land, up to the configured shutdown grace.
func (o *Orchestrator) Stop() {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Infow("Run orchestrator stopped, all executions settled")
	case <-time.After(o.cfg.ShutdownGrace):
		o.logger.Warnw("Run orchestrator stop timed out with executions still in flight",
			"timeout", o.cfg.ShutdownGrace)
	}
}

// Submit validates and queues an analysis run for the raw ticker, then
// schedules its execution. The returned run is in status queued;
// callers observe progress through Get/ListRecent or the event feed.
func (o *Orchestrator) Submit(rawTicker string) (*Run, error) {
	run, err := New(rawTicker)
	if err != nil {
		return nil, err
	}

	if err := o.store.Insert(run); err != nil {
		return nil, errors.Wrap(err, "failed to queue run")
	}

	o.logger.Infow("Analysis run submitted",
		"run_id", run.ID,
		"ticker", run.Ticker)

	o.events.Publish(run)
	o.schedule(run)

	return run, nil
}

// schedule hands a queued run to an execution goroutine
func (o *Orchestrator) schedule(run *Run) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(run)
	}()
}

// execute advances one run through its lifecycle: claim it with a
// queued -> running transition, invoke the executor under the
// deadline, then record exactly one terminal outcome.
func (o *Orchestrator) execute(run *Run) {
	select {
	case <-o.ctx.Done():
		// Shutting down - leave the run queued, the next Start re-schedules it
		return
	default:
	}

	// Counted before the claim so observers that see the run as running
	// always see it in flight
	o.mu.Lock()
	o.inFlight++
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()
	}()

	if err := o.store.Transition(run.ID, StatusQueued, StatusRunning); err != nil {
		if IsInvalidTransition(err) {
			o.logger.Warnw("Run no longer queued, skipping execution",
				"run_id", run.ID,
				"error", err)
		} else {
			o.logger.Errorw("Failed to claim run for execution",
				"run_id", run.ID,
				"error", err)
		}
		return
	}

	run.Start()
	o.events.Publish(run)
	o.logger.Infow("Analysis run started",
		"run_id", run.ID,
		"ticker", run.Ticker)

	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.Deadline)
	defer cancel()

	started := time.Now()
	result, err := o.executor.Analyze(ctx, run.Ticker)
	durationMS := time.Since(started).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrapf(err, "analysis exceeded %s deadline", o.cfg.Deadline)
		}
		o.recordFailure(run, err, durationMS)
		return
	}

	o.recordResult(run, result, durationMS)
}

// recordResult writes the completed terminal state. A run that already
// settled elsewhere keeps its first outcome; the late result is
// dropped and logged.
func (o *Orchestrator) recordResult(run *Run, result json.RawMessage, durationMS int64) {
	if err := o.store.Complete(run.ID, result); err != nil {
		if IsInvalidTransition(err) {
			o.logger.Warnw("Run already settled, dropping result",
				"run_id", run.ID,
				"error", err)
		} else {
			o.logger.Errorw("Failed to record run result",
				"run_id", run.ID,
				"error", err)
		}
		return
	}

	run.Complete(result)
	o.events.Publish(run)
	o.logger.Infow("Analysis run completed",
		"run_id", run.ID,
		"ticker", run.Ticker,
		"duration_ms", durationMS)
}

// recordFailure writes the failed terminal state with the cause
func (o *Orchestrator) recordFailure(run *Run, cause error, durationMS int64) {
	if err := o.store.Fail(run.ID, cause.Error()); err != nil {
		if IsInvalidTransition(err) {
			o.logger.Warnw("Run already settled, dropping failure",
				"run_id", run.ID,
				"error", err)
		} else {
			o.logger.Errorw("Failed to record run failure",
				"run_id", run.ID,
				"error", err)
		}
		return
	}

	run.Fail(cause)
	o.events.Publish(run)
	o.logger.Warnw("Analysis run failed",
		"run_id", run.ID,
		"ticker", run.Ticker,
		"duration_ms", durationMS,
		"error", cause)
}

// recoverInterruptedRuns settles runs a previous process abandoned.
// Runs found running are failed - the lifecycle only moves forward, so
// an execution whose owner died is never re-queued. Runs still queued
// never started and are simply scheduled again.
func (o *Orchestrator) recoverInterruptedRuns() error {
	interrupted, err := o.store.ListByStatus(StatusRunning, MaxRecoveredRuns)
	if err != nil {
		return errors.Wrap(err, "failed to list interrupted runs")
	}

	for _, r := range interrupted {
		if err := o.store.Fail(r.ID, "analysis interrupted by restart"); err != nil {
			o.logger.Warnw("Failed to settle interrupted run",
				"run_id", r.ID,
				"error", err)
			continue
		}
		r.Fail(errors.New("analysis interrupted by restart"))
		o.events.Publish(r)
	}

	if len(interrupted) > 0 {
		o.logger.Infow("Settled runs interrupted by restart", "count", len(interrupted))
	}

	queued, err := o.store.ListByStatus(StatusQueued, MaxRecoveredRuns)
	if err != nil {
		return errors.Wrap(err, "failed to list queued runs")
	}

	for _, r := range queued {
		o.schedule(r)
	}

	if len(queued) > 0 {
		o.logger.Infow("Re-scheduled queued runs from previous process", "count", len(queued))
	}

	return nil
}
