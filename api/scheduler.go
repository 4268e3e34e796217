/*
scheduler.go - Automated payment reconciliation scheduler

PURPOSE:
  Periodically re-verifies registrations whose payment callback never
  arrived (payer closed the tab, gateway dropped the redirect, server was
  down). Each run asks the engine to settle every registration that has
  been pending longer than After.

DESIGN:
  - robfig/cron drives the schedule ("@every 5m", or a standard cron spec)
  - SkipIfStillRunning: a slow gateway never stacks up overlapping runs
  - Each run gets its own timeout so a hung gateway cannot pin the job
  - The last run is kept in memory for the admin endpoint

USAGE:
  scheduler := NewReconciliationScheduler(engine, "@every 5m", 30*time.Minute, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - booking/reconcile.go: ReconcilePending
  - handlers.go: TriggerReconcile endpoint (manual run)
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/swim-engine/booking"
)

const reconcileRunTimeout = 4 * time.Minute

// ReconcileRun records one reconciliation pass.
type ReconcileRun struct {
	Trigger     string                  `json:"trigger"` // "schedule" or "manual"
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
	Report      booking.ReconcileReport `json:"report"`
	Error       string                  `json:"error,omitempty"`
}

// ReconciliationScheduler runs booking reconciliation on a cron schedule.
type ReconciliationScheduler struct {
	Engine   *booking.Engine
	Schedule string
	After    time.Duration

	log  *slog.Logger
	cron *cron.Cron

	mu      sync.Mutex
	lastRun *ReconcileRun
}

// NewReconciliationScheduler creates a scheduler. An empty schedule disables
// the periodic job; RunNow still works.
func NewReconciliationScheduler(engine *booking.Engine, schedule string, after time.Duration, logger *slog.Logger) *ReconciliationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconciliationScheduler{
		Engine:   engine,
		Schedule: schedule,
		After:    after,
		log:      logger.With("component", "reconciler"),
	}
}

// Start registers the job and starts the cron runner.
func (rs *ReconciliationScheduler) Start() error {
	if rs.Schedule == "" {
		rs.log.Info("scheduler disabled, not starting")
		return nil
	}

	cl := cronLogger{rs.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(rs.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileRunTimeout)
		defer cancel()
		rs.run(ctx, "schedule")
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", rs.Schedule, err)
	}

	rs.mu.Lock()
	rs.cron = c
	rs.mu.Unlock()

	c.Start()
	rs.log.Info("scheduler started", "schedule", rs.Schedule, "after", rs.After)
	return nil
}

// Stop stops the cron runner and waits for a running job to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	c := rs.cron
	rs.cron = nil
	rs.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		rs.log.Info("scheduler stopped")
	}
}

// RunNow triggers an immediate reconciliation (for testing/admin).
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) ReconcileRun {
	return rs.run(ctx, "manual")
}

// LastRun returns the most recent run, or nil before the first one.
func (rs *ReconciliationScheduler) LastRun() *ReconcileRun {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastRun == nil {
		return nil
	}
	run := *rs.lastRun
	return &run
}

// NextRunTime returns when the next scheduled run will occur, or the zero
// time if the scheduler is not running.
func (rs *ReconciliationScheduler) NextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cron == nil {
		return time.Time{}
	}
	entries := rs.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (rs *ReconciliationScheduler) run(ctx context.Context, trigger string) ReconcileRun {
	run := ReconcileRun{Trigger: trigger, StartedAt: time.Now().UTC()}

	report, err := rs.Engine.ReconcilePending(ctx, rs.After)
	run.Report = report
	run.CompletedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
		rs.log.Error("reconciliation failed", "trigger", trigger, "error", err)
	} else if report.Checked > 0 {
		rs.log.Info("reconciliation completed",
			"trigger", trigger,
			"checked", report.Checked,
			"confirmed", report.Confirmed,
			"failed", report.Failed,
			"errored", report.Errored,
		)
	}

	rs.mu.Lock()
	rs.lastRun = &run
	rs.mu.Unlock()
	return run
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
