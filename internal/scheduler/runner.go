// Package scheduler executes due report schedules and keeps their run
// bookkeeping.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/reportengine/internal/models"
	"github.com/reportengine/internal/notify"
	"github.com/reportengine/internal/recurrence"
	"github.com/reportengine/internal/report"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

var (
	// ErrNotDue is returned by RunSchedule for a disabled schedule.
	ErrNotDue = errors.New("schedule is not active")
	// ErrClaimLost means another tick advanced the schedule first.
	ErrClaimLost = errors.New("schedule already claimed")
)

const recordTimeout = 30 * time.Second

type Materializer interface {
	Materialize(ctx context.Context, req report.Request) (string, error)
}

type Options struct {
	// Concurrency bounds the per-schedule tasks of one tick. 0 is unbounded.
	Concurrency int
	// Claim advances next_run with a conditional update before running.
	Claim       bool
	TaskTimeout time.Duration
	Location    *time.Location
	Notifier    notify.Notifier
	Now         func() time.Time
}

type TickResult struct {
	Due       int           `json:"due"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

type Runner struct {
	db           *gorm.DB
	materializer Materializer
	log          logrus.FieldLogger
	opts         Options
	sem          *semaphore.Weighted
	metrics      *runnerMetrics
}

type runnerMetrics struct {
	mutex             sync.RWMutex
	totalTicks        uint64
	failedTicks       uint64
	totalRuns         uint64
	successfulRuns    uint64
	failedRuns        uint64
	skippedRuns       uint64
	totalTickDuration time.Duration
	lastTick          time.Time
}

func NewRunner(db *gorm.DB, materializer Materializer, log logrus.FieldLogger, opts Options) *Runner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Runner{
		db:           db,
		materializer: materializer,
		log:          log,
		opts:         opts,
		metrics:      &runnerMetrics{},
	}
	if opts.Concurrency > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.Concurrency))
	}
	return r
}

type runState int

const (
	runSucceeded runState = iota
	runFailed
	runSkipped
)

// Tick runs every active schedule whose next run is due. Schedules are
// processed concurrently and a failure in one never affects another; only a
// failure to list the due schedules is returned.
func (r *Runner) Tick(ctx context.Context) (TickResult, error) {
	started := time.Now()
	now := r.now()

	var due []models.Schedule
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND next_run <= ?", true, now.UTC()).
		Find(&due).Error; err != nil {
		r.metrics.recordTick(time.Since(started), false)
		return TickResult{}, fmt.Errorf("failed to query due schedules: %w", err)
	}

	result := TickResult{Due: len(due)}
	var (
		wg    sync.WaitGroup
		mutex sync.Mutex
	)

	for _, s := range due {
		wg.Add(1)
		go func(s models.Schedule) {
			defer wg.Done()

			state := runSkipped
			if r.sem == nil || r.sem.Acquire(ctx, 1) == nil {
				if r.sem != nil {
					defer r.sem.Release(1)
				}
				state, _, _ = r.execute(ctx, s, now)
			}

			mutex.Lock()
			defer mutex.Unlock()
			switch state {
			case runSucceeded:
				result.Succeeded++
			case runFailed:
				result.Failed++
			default:
				result.Skipped++
			}
		}(s)
	}

	wg.Wait()
	result.Duration = time.Since(started)
	r.metrics.recordTick(result.Duration, true)

	r.log.WithFields(logrus.Fields{
		"due":       result.Due,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"duration":  result.Duration.String(),
	}).Info("Scheduler tick completed")

	return result, nil
}

// RunSchedule executes one active schedule now, whatever its next run, and
// applies the same bookkeeping as a tick. The materialization error, if any,
// is recorded on the schedule and also returned.
func (r *Runner) RunSchedule(ctx context.Context, id string) (string, error) {
	var s models.Schedule
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return "", fmt.Errorf("failed to fetch schedule: %w", err)
	}
	if !s.IsActive {
		return "", ErrNotDue
	}

	state, reportID, err := r.execute(ctx, s, r.now())
	if state == runSkipped {
		return "", ErrClaimLost
	}
	return reportID, err
}

func (r *Runner) execute(ctx context.Context, s models.Schedule, now time.Time) (runState, string, error) {
	log := r.log.WithFields(logrus.Fields{
		"schedule_id": s.ID,
		"template_id": s.TemplateID,
	})
	next := recurrence.NextRun(s.Recurrence, now)

	if r.opts.Claim {
		if err := r.claim(ctx, s, next); err != nil {
			log.WithError(err).Info("Skipping schedule")
			r.metrics.recordRun(runSkipped)
			return runSkipped, "", err
		}
	}

	taskCtx := ctx
	if r.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, r.opts.TaskTimeout)
		defer cancel()
	}

	startedAt := r.now()
	reportID, runErr := r.materialize(taskCtx, s, now)

	// Once materialization has returned, its outcome is recorded even if the
	// tick was cancelled or the task timed out.
	recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancelRecord()
	if err := r.record(recordCtx, s, now, next, startedAt, reportID, runErr); err != nil {
		log.WithError(err).Error("Failed to record schedule run")
	}

	state := runSucceeded
	if runErr != nil {
		state = runFailed
		log.WithError(runErr).Error("Schedule run failed")
	} else {
		log.WithFields(logrus.Fields{
			"report_id": reportID,
			"next_run":  next,
		}).Info("Schedule run succeeded")
	}
	r.metrics.recordRun(state)

	if r.opts.Notifier != nil {
		outcome := notify.Outcome{Schedule: s, ReportID: reportID, Err: runErr, At: now, NextRun: next}
		if err := r.opts.Notifier.Notify(recordCtx, outcome); err != nil {
			log.WithError(err).Warn("Failed to send run notification")
		}
	}

	return state, reportID, runErr
}

func (r *Runner) materialize(ctx context.Context, s models.Schedule, now time.Time) (id string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during materialization: %v", p)
		}
	}()

	return r.materializer.Materialize(ctx, report.Request{
		ScheduleID:   s.ID,
		UserID:       s.UserID,
		TemplateID:   s.TemplateID,
		AccountID:    s.AccountID,
		ScheduleName: s.Name,
		Now:          now,
	})
}

// claim moves next_run forward only if it still holds the value this task
// observed. Zero affected rows means another task got there first.
func (r *Runner) claim(ctx context.Context, s models.Schedule, next time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ? AND next_run = ?", s.ID, s.NextRun).
		Update("next_run", next.UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to claim schedule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *Runner) record(ctx context.Context, s models.Schedule, now, next, startedAt time.Time, reportID string, runErr error) error {
	updates := map[string]interface{}{
		"total_runs": gorm.Expr("total_runs + ?", 1),
		"last_run":   now.UTC(),
		"next_run":   next.UTC(),
	}
	run := models.ScheduleRun{
		ScheduleID: s.ID,
		StartedAt:  startedAt.UTC(),
		FinishedAt: r.now().UTC(),
	}

	if runErr != nil {
		updates["failed_runs"] = gorm.Expr("failed_runs + ?", 1)
		updates["status"] = models.ScheduleStatusError
		updates["last_run_status"] = models.RunStatusError
		updates["last_run_error"] = runErr.Error()
		run.Status = models.RunStatusError
		run.Error = runErr.Error()
	} else {
		updates["successful_runs"] = gorm.Expr("successful_runs + ?", 1)
		updates["status"] = models.ScheduleStatusActive
		updates["last_run_status"] = models.RunStatusSuccess
		updates["last_generated_report_id"] = reportID
		run.Status = models.RunStatusSuccess
		run.ReportID = reportID
	}

	if err := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", s.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to store run history: %w", err)
	}
	return nil
}

func (r *Runner) now() time.Time {
	return r.opts.Now().In(r.opts.Location)
}

func (m *runnerMetrics) recordTick(d time.Duration, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalTicks++
	if !ok {
		m.failedTicks++
	}
	m.totalTickDuration += d
	m.lastTick = time.Now()
}

func (m *runnerMetrics) recordRun(state runState) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	switch state {
	case runSucceeded:
		m.totalRuns++
		m.successfulRuns++
	case runFailed:
		m.totalRuns++
		m.failedRuns++
	default:
		m.skippedRuns++
	}
}

// Metrics returns cumulative counters since the runner was created.
func (r *Runner) Metrics() map[string]interface{} {
	m := r.metrics
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var avg float64
	if m.totalTicks > 0 {
		avg = m.totalTickDuration.Seconds() / float64(m.totalTicks)
	}
	var lastTick interface{}
	if !m.lastTick.IsZero() {
		lastTick = m.lastTick
	}

	return map[string]interface{}{
		"total_ticks":      m.totalTicks,
		"failed_ticks":     m.failedTicks,
		"total_runs":       m.totalRuns,
		"successful_runs":  m.successfulRuns,
		"failed_runs":      m.failedRuns,
		"skipped_runs":     m.skippedRuns,
		"avg_tick_seconds": avg,
		"last_tick":        lastTick,
		"max_concurrency":  r.opts.Concurrency,
		"goroutines":       runtime.NumGoroutine(),
	}
}
