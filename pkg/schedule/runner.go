package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/sim"
)

// Runner manages scheduled simulation batches
type Runner struct {
	cron     *cron.Cron
	store    *Store
	database *db.DB
	jobs     map[int64]cron.EntryID
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRunner creates a new schedule runner
func NewRunner(database *db.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		cron:     cron.New(cron.WithParser(cronParser)),
		store:    NewStore(database),
		database: database,
		jobs:     make(map[int64]cron.EntryID),
		logger:   logger.With("component", "scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start loads every enabled schedule and starts the cron scheduler
func (r *Runner) Start() error {
	r.logger.Info("starting scheduler")

	enabled := true
	schedules, err := r.store.List(ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := r.registerSchedule(schedule); err != nil {
			r.logger.Error("failed to register schedule", "schedule", schedule.Name, "error", err)
		}
	}

	r.cron.Start()

	r.logger.Info("scheduler started", "active", r.ActiveCount())
	return nil
}

// Stop cancels running batches and waits up to timeout for them to finish
func (r *Runner) Stop(timeout time.Duration) {
	r.logger.Info("stopping scheduler")

	r.cancel()
	cronCtx := r.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("all jobs completed")
	case <-time.After(timeout):
		r.logger.Warn("timeout waiting for jobs to complete", "timeout", timeout)
	}
}

// ActiveCount returns the number of registered schedules
func (r *Runner) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// RegisterSchedule adds a stored schedule to the runner
func (r *Runner) RegisterSchedule(scheduleID int64) error {
	schedule, err := r.store.Get(scheduleID)
	if err != nil {
		return err
	}
	return r.registerSchedule(schedule)
}

// UnregisterSchedule removes a schedule from the runner
func (r *Runner) UnregisterSchedule(scheduleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, exists := r.jobs[scheduleID]; exists {
		r.cron.Remove(entryID)
		delete(r.jobs, scheduleID)
		r.logger.Info("unregistered schedule", "id", scheduleID)
	}
}

// RefreshSchedule reloads a schedule, registering it again if enabled
func (r *Runner) RefreshSchedule(scheduleID int64) error {
	r.UnregisterSchedule(scheduleID)

	schedule, err := r.store.Get(scheduleID)
	if err != nil {
		return err
	}
	return r.registerSchedule(schedule)
}

func (r *Runner) registerSchedule(schedule *Schedule) error {
	if !schedule.Enabled {
		return nil
	}

	entryID, err := r.cron.AddFunc(schedule.CronExpr, r.createJob(schedule))
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.mu.Lock()
	r.jobs[schedule.ID] = entryID
	r.mu.Unlock()

	r.logger.Info("registered schedule",
		"schedule", schedule.Name, "id", schedule.ID, "cron", schedule.CronExpr)
	return nil
}

func (r *Runner) createJob(schedule *Schedule) func() {
	return func() {
		if r.ctx.Err() != nil {
			return
		}
		r.dispatch(schedule)
	}
}

// dispatch executes a schedule without blocking the cron loop
func (r *Runner) dispatch(schedule *Schedule) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Execute(r.ctx, schedule); err != nil {
			r.logger.Error("scheduled batch failed", "schedule", schedule.Name, "error", err)
		}
	}()
}

// Execute runs one batch for schedule, stores it and advances the
// schedule's last and next run times
func (r *Runner) Execute(ctx context.Context, schedule *Schedule) (run *db.Run, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in schedule %s: %v", schedule.Name, p)
		}
	}()

	cfg, workers, err := schedule.SimConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %s: %w", schedule.Name, err)
	}

	s, err := sim.New(cfg)
	if err != nil {
		return nil, err
	}

	log := r.logger.With("schedule", schedule.Name)
	log.Info("executing scheduled batch", "standard", cfg.Standard.Name, "trials", schedule.Trials)

	params := db.JSONData{"schedule": schedule.Name}
	run, summary, runErr := r.database.RecordSimulation(ctx, s, schedule.Trials, workers, params, nil)
	if run == nil {
		return nil, runErr
	}

	if err := r.store.UpdateLastRun(schedule.ID, run.ID); err != nil {
		log.Error("failed to update schedule last run", "error", err)
	}

	log.Info("completed scheduled batch",
		"run", run.ID,
		"success", run.Success,
		"trials", summary.Trials,
		"mean_unscrambled_rate", summary.MeanUnscrambledRate,
		"mean_scrambled_rate", summary.MeanScrambledRate,
		"duration", run.Duration(),
	)
	return run, runErr
}

// CheckDue dispatches every overdue schedule immediately
func (r *Runner) CheckDue() error {
	schedules, err := r.store.GetDue()
	if err != nil {
		return fmt.Errorf("failed to get due schedules: %w", err)
	}

	for _, schedule := range schedules {
		r.logger.Info("running overdue schedule", "schedule", schedule.Name)
		r.dispatch(schedule)
	}
	return nil
}

// ListJobs returns information about all scheduled jobs
func (r *Runner) ListJobs() []cron.Entry {
	return r.cron.Entries()
}
