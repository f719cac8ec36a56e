// Package scheduler drives recurring stats sync cycles.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/leetboard/statsync/internal/models"
)

// Synchronizer refreshes every roster snapshot.
type Synchronizer interface {
	SyncAll(ctx context.Context) (models.BatchReport, error)
}

// InactivityScanner derives the inactive subset of the roster.
type InactivityScanner interface {
	InactiveAccounts(ctx context.Context) ([]*models.TrackedAccount, error)
}

// Recorder receives cycle metrics.
type Recorder interface {
	ObserveCycle(trigger, result string, duration time.Duration, finishedAt time.Time)
	ObserveAccount(kind string)
	SetInactive(n int)
	SkippedTick()
}

// Cycle results reported to the Recorder.
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultError   = "error"
)

// Options configures a Scheduler. Runs and Recorder are optional.
type Options struct {
	StartupDelay time.Duration
	Schedule     cron.Schedule
	ScheduleSpec string
	RunRetention time.Duration
	Runs         models.SyncRunRepository
	Recorder     Recorder
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running       bool            `json:"running"`
	CycleInFlight bool            `json:"cycle_in_flight"`
	Schedule      string          `json:"schedule"`
	NextRun       *time.Time      `json:"next_run,omitempty"`
	LastCycle     *models.SyncRun `json:"last_cycle,omitempty"`
}

// Scheduler owns the recurring timer. At most one cycle runs at a time and
// no scheduled cycle begins after Stop returns.
type Scheduler struct {
	synchronizer Synchronizer
	scanner      InactivityScanner
	opts         Options
	recorder     Recorder
	logger       *slog.Logger

	// mu guards the lifecycle fields and cycle admission.
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	nextRun  time.Time
	inFlight bool
	last     *models.SyncRun

	// cycleMu is held for the duration of a cycle.
	cycleMu sync.Mutex
}

// ParseSchedule accepts a standard five-field cron expression or a
// descriptor such as "@daily" or "@every 24h".
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// New creates an idle scheduler.
func New(synchronizer Synchronizer, scanner InactivityScanner, opts Options, logger *slog.Logger) *Scheduler {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if opts.Schedule == nil {
		opts.Schedule = cron.Every(24 * time.Hour)
		opts.ScheduleSpec = "@every 24h"
	}
	return &Scheduler{
		synchronizer: synchronizer,
		scanner:      scanner,
		opts:         opts,
		recorder:     recorder,
		logger:       logger,
	}
}

// Start moves the scheduler to running. The first cycle fires after the
// startup delay. Starting a running scheduler is a logged no-op and returns
// false. Cycles run with ctx; cancelling it also stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Info("Stats sync scheduler already running")
		return false
	}

	stop := make(chan struct{})
	s.running = true
	s.stopCh = stop

	s.logger.Info("Starting stats sync scheduler",
		"startup_delay", s.opts.StartupDelay,
		"schedule", s.opts.ScheduleSpec,
	)

	go s.loop(ctx, stop)
	return true
}

// Stop cancels the pending timer. A cycle already in flight finishes
// normally. Returns false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Stats sync scheduler not running")
		return false
	}

	close(s.stopCh)
	s.stopCh = nil
	s.running = false
	s.nextRun = time.Time{}

	s.logger.Info("Stats sync scheduler stopped", "cycle_in_flight", s.inFlight)
	return true
}

// RunOnce runs one full cycle synchronously regardless of timer state. It
// waits for an in-flight cycle to finish first.
func (s *Scheduler) RunOnce(ctx context.Context) (models.SyncRun, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.setInFlight(true)
	return s.runCycle(ctx, models.TriggerManual)
}

// UpdateStats runs only the batch synchronizer, serialized with cycles.
func (s *Scheduler) UpdateStats(ctx context.Context) (models.BatchReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.setInFlight(true)
	defer s.setInFlight(false)

	report, err := s.synchronizer.SyncAll(ctx)
	if err != nil {
		return report, err
	}
	for _, o := range report.Outcomes {
		s.recorder.ObserveAccount(string(o.Kind))
	}
	return report, nil
}

// InactiveAccounts runs the inactivity scanner without side effects.
func (s *Scheduler) InactiveAccounts(ctx context.Context) ([]*models.TrackedAccount, error) {
	return s.scanner.InactiveAccounts(ctx)
}

// Status reports the lifecycle state and the most recent cycle.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:       s.running,
		CycleInFlight: s.inFlight,
		Schedule:      s.opts.ScheduleSpec,
	}
	if s.running && !s.nextRun.IsZero() {
		next := s.nextRun
		status.NextRun = &next
	}
	if s.last != nil {
		last := *s.last
		status.LastCycle = &last
	}
	return status
}

func (s *Scheduler) loop(ctx context.Context, stop chan struct{}) {
	wait := s.opts.StartupDelay

	for {
		s.setNextRun(stop, time.Now().Add(wait))
		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			s.detach(stop)
			s.logger.Info("Stats sync scheduler stopping due to context cancellation")
			return
		}

		s.tick(ctx, stop)

		now := time.Now()
		wait = s.opts.Schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, stop chan struct{}) {
	s.mu.Lock()
	select {
	case <-stop:
		s.mu.Unlock()
		return
	default:
	}
	if !s.cycleMu.TryLock() {
		s.mu.Unlock()
		s.logger.Info("Skipping scheduled sync, previous cycle still running")
		s.recorder.SkippedTick()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	defer s.cycleMu.Unlock()
	_, _ = s.runCycle(ctx, models.TriggerSchedule)
}

// runCycle must be called with cycleMu held and inFlight set.
func (s *Scheduler) runCycle(ctx context.Context, trigger models.CycleTrigger) (models.SyncRun, error) {
	defer s.setInFlight(false)

	run := models.SyncRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	logger := s.logger.With("cycle_id", run.ID, "trigger", string(trigger))

	report, err := s.synchronizer.SyncAll(ctx)
	if err != nil {
		logger.Error("Sync cycle aborted, waiting for next tick", "error", err)
		run.Error = err.Error()
		run.FinishedAt = time.Now()
		s.finish(ctx, logger, run, ResultError)
		return run, err
	}

	run.RosterSize = len(report.Outcomes)
	run.FailuresByKind = make(map[string]int)
	for _, o := range report.Outcomes {
		s.recorder.ObserveAccount(string(o.Kind))
		if o.Success {
			run.Succeeded++
			continue
		}
		run.Failed++
		run.FailuresByKind[string(o.Kind)]++
	}

	result := ResultSuccess
	if run.Failed > 0 {
		result = ResultPartial
	}

	inactive, err := s.scanner.InactiveAccounts(ctx)
	if err != nil {
		logger.Error("Inactivity scan failed", "error", err)
		run.Error = err.Error()
		result = ResultError
	} else {
		run.Inactive = make([]string, 0, len(inactive))
		for _, a := range inactive {
			run.Inactive = append(run.Inactive, a.Handle)
		}
		s.recorder.SetInactive(len(inactive))
	}
	run.FinishedAt = time.Now()

	logger.Info("Sync cycle completed",
		"roster_size", run.RosterSize,
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"failures_by_kind", run.FailuresByKind,
		"inactive_count", len(run.Inactive),
		"inactive", run.Inactive,
		"duration_ms", run.DurationMs(),
	)

	s.finish(ctx, logger, run, result)
	if err != nil {
		return run, fmt.Errorf("inactivity scan: %w", err)
	}
	return run, nil
}

func (s *Scheduler) finish(ctx context.Context, logger *slog.Logger, run models.SyncRun, result string) {
	s.recorder.ObserveCycle(string(run.Trigger), result, run.FinishedAt.Sub(run.StartedAt), run.FinishedAt)

	s.mu.Lock()
	s.last = &run
	s.mu.Unlock()

	if s.opts.Runs == nil {
		return
	}
	if err := s.opts.Runs.Record(ctx, run); err != nil {
		logger.Warn("Failed to record sync run", "error", err)
	}
	if s.opts.RunRetention > 0 {
		pruned, err := s.opts.Runs.DeleteOlderThan(ctx, s.opts.RunRetention)
		if err != nil {
			logger.Warn("Failed to prune sync runs", "error", err)
		} else if pruned > 0 {
			logger.Debug("Pruned old sync runs", "deleted", pruned)
		}
	}
}

func (s *Scheduler) setInFlight(v bool) {
	s.mu.Lock()
	s.inFlight = v
	s.mu.Unlock()
}

func (s *Scheduler) setNextRun(stop chan struct{}, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == stop {
		s.nextRun = at
	}
}

// detach marks the scheduler idle if stop still belongs to the current run.
func (s *Scheduler) detach(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == stop {
		close(stop)
		s.stopCh = nil
		s.running = false
		s.nextRun = time.Time{}
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveCycle(string, string, time.Duration, time.Time) {}
func (noopRecorder) ObserveAccount(string)                                 {}
func (noopRecorder) SetInactive(int)                                       {}
func (noopRecorder) SkippedTick()                                          {}
