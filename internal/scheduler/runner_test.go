package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reportengine/internal/config"
	"github.com/reportengine/internal/database"
	"github.com/reportengine/internal/logger"
	"github.com/reportengine/internal/models"
	"github.com/reportengine/internal/notify"
	"github.com/reportengine/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Wednesday.
var testNow = time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "scheduler.db"),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func intPtr(v int) *int { return &v }

// fakeMaterializer fails or panics for the schedule names it is told to.
type fakeMaterializer struct {
	mutex    sync.Mutex
	fail     map[string]error
	panics   map[string]bool
	delay    time.Duration
	onCall   func(report.Request)
	calls    []report.Request
	inFlight int
	maxSeen  int
}

func (f *fakeMaterializer) Materialize(ctx context.Context, req report.Request) (string, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mutex.Unlock()
	defer func() {
		f.mutex.Lock()
		f.inFlight--
		f.mutex.Unlock()
	}()

	if f.onCall != nil {
		f.onCall(req)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.panics[req.ScheduleName] {
		panic("nil template slides")
	}
	if err := f.fail[req.ScheduleName]; err != nil {
		return "", err
	}
	return "report-" + req.ScheduleName, nil
}

func (f *fakeMaterializer) callCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mutex    sync.Mutex
	outcomes []notify.Outcome
}

func (n *recordingNotifier) Notify(ctx context.Context, o notify.Outcome) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.outcomes = append(n.outcomes, o)
	return errors.New("slack unavailable")
}

func newTestRunner(db *gorm.DB, m Materializer, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return NewRunner(db, m, logger.Discard(), opts)
}

func seedSchedule(t *testing.T, db *gorm.DB, name string, rec models.Recurrence, nextRun time.Time) models.Schedule {
	t.Helper()
	s := models.Schedule{
		UserID:     "u1",
		TemplateID: "t1",
		AccountID:  "a1",
		Name:       name,
		IsActive:   true,
		Recurrence: rec,
		NextRun:    nextRun,
		Status:     models.ScheduleStatusActive,
	}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func loadSchedule(t *testing.T, db *gorm.DB, id string) models.Schedule {
	t.Helper()
	var s models.Schedule
	require.NoError(t, db.First(&s, "id = ?", id).Error)
	return s
}

func TestTickIsolatesFailures(t *testing.T) {
	db := newTestDB(t)
	due := testNow.Add(-time.Hour)

	daily := seedSchedule(t, db, "daily", models.Recurrence{Frequency: models.FrequencyDaily, Hour: intPtr(9)}, due)
	weekly := seedSchedule(t, db, "broken", models.Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: "monday", Hour: intPtr(9)}, due)
	monthly := seedSchedule(t, db, "monthly", models.Recurrence{Frequency: models.FrequencyMonthly, DayOfMonth: intPtr(31), Hour: intPtr(9)}, due)

	m := &fakeMaterializer{fail: map[string]error{"broken": report.ErrTemplateNotFound}}
	r := newTestRunner(db, m, Options{Concurrency: 10})

	result, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Due)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, m.callCount())

	got := loadSchedule(t, db, daily.ID)
	assert.Equal(t, 1, got.TotalRuns)
	assert.Equal(t, 1, got.SuccessfulRuns)
	assert.Zero(t, got.FailedRuns)
	assert.Equal(t, models.ScheduleStatusActive, got.Status)
	assert.Equal(t, models.RunStatusSuccess, got.LastRunStatus)
	assert.Equal(t, "report-daily", got.LastGeneratedReportID)
	require.NotNil(t, got.LastRun)
	assert.True(t, testNow.Equal(*got.LastRun))
	assert.True(t, time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC).Equal(got.NextRun), got.NextRun)

	got = loadSchedule(t, db, weekly.ID)
	assert.Equal(t, 1, got.TotalRuns)
	assert.Equal(t, 1, got.FailedRuns)
	assert.Zero(t, got.SuccessfulRuns)
	assert.Equal(t, models.ScheduleStatusError, got.Status)
	assert.Equal(t, models.RunStatusError, got.LastRunStatus)
	assert.Equal(t, report.ErrTemplateNotFound.Error(), got.LastRunError)
	assert.Empty(t, got.LastGeneratedReportID)
	assert.True(t, time.Date(2024, time.March, 18, 9, 0, 0, 0, time.UTC).Equal(got.NextRun), got.NextRun)

	got = loadSchedule(t, db, monthly.ID)
	assert.Equal(t, 1, got.SuccessfulRuns)
	assert.True(t, time.Date(2024, time.April, 30, 9, 0, 0, 0, time.UTC).Equal(got.NextRun), got.NextRun)

	var runs []models.ScheduleRun
	require.NoError(t, db.Find(&runs).Error)
	require.Len(t, runs, 3)
	statuses := map[string]models.RunStatus{}
	for _, run := range runs {
		statuses[run.ScheduleID] = run.Status
	}
	assert.Equal(t, models.RunStatusError, statuses[weekly.ID])
	assert.Equal(t, models.RunStatusSuccess, statuses[daily.ID])
}

func TestTickRecoversPanics(t *testing.T) {
	db := newTestDB(t)
	due := testNow.Add(-time.Minute)
	bad := seedSchedule(t, db, "bad", models.Recurrence{Frequency: models.FrequencyDaily}, due)
	good := seedSchedule(t, db, "good", models.Recurrence{Frequency: models.FrequencyDaily}, due)

	r := newTestRunner(db, &fakeMaterializer{panics: map[string]bool{"bad": true}}, Options{})
	result, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	got := loadSchedule(t, db, bad.ID)
	assert.Equal(t, models.ScheduleStatusError, got.Status)
	assert.Contains(t, got.LastRunError, "panic during materialization")
	assert.True(t, got.NextRun.After(testNow))

	assert.Equal(t, 1, loadSchedule(t, db, good.ID).SuccessfulRuns)
}

func TestTickOnlyRunsDueActiveSchedules(t *testing.T) {
	db := newTestDB(t)
	rec := models.Recurrence{Frequency: models.FrequencyDaily}

	dueNow := seedSchedule(t, db, "due", rec, testNow)
	seedSchedule(t, db, "future", rec, testNow.Add(time.Minute))
	disabled := seedSchedule(t, db, "disabled", rec, testNow.Add(-time.Hour))
	require.NoError(t, db.Model(&models.Schedule{}).Where("id = ?", disabled.ID).Update("is_active", false).Error)

	m := &fakeMaterializer{}
	result, err := newTestRunner(db, m, Options{}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Due)
	require.Equal(t, 1, m.callCount())
	assert.Equal(t, dueNow.ID, m.calls[0].ScheduleID)
	assert.Equal(t, "u1", m.calls[0].UserID)
	assert.Equal(t, "t1", m.calls[0].TemplateID)
	assert.Equal(t, "a1", m.calls[0].AccountID)
	assert.True(t, testNow.Equal(m.calls[0].Now))

	assert.Zero(t, loadSchedule(t, db, disabled.ID).TotalRuns)
}

func TestTickQueryFailureIsReturned(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&models.Schedule{}))

	r := newTestRunner(db, &fakeMaterializer{}, Options{})
	_, err := r.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query due schedules")

	metrics := r.Metrics()
	assert.Equal(t, uint64(1), metrics["total_ticks"])
	assert.Equal(t, uint64(1), metrics["failed_ticks"])
}

func TestTickBoundsConcurrency(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 6; i++ {
		seedSchedule(t, db, fmt.Sprintf("s%d", i), models.Recurrence{Frequency: models.FrequencyDaily}, testNow.Add(-time.Hour))
	}

	m := &fakeMaterializer{delay: 20 * time.Millisecond}
	result, err := newTestRunner(db, m, Options{Concurrency: 2}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, result.Succeeded)
	assert.LessOrEqual(t, m.maxSeen, 2)
}

func TestTaskTimeoutFailsOnlyThatSchedule(t *testing.T) {
	db := newTestDB(t)
	s := seedSchedule(t, db, "slow", models.Recurrence{Frequency: models.FrequencyDaily}, testNow.Add(-time.Hour))

	m := &fakeMaterializer{delay: time.Second}
	result, err := newTestRunner(db, m, Options{TaskTimeout: 20 * time.Millisecond}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got := loadSchedule(t, db, s.ID)
	assert.Equal(t, models.ScheduleStatusError, got.Status)
	assert.Contains(t, got.LastRunError, context.DeadlineExceeded.Error())
}

func TestClaimSkipsStaleCopies(t *testing.T) {
	db := newTestDB(t)
	s := seedSchedule(t, db, "claimed", models.Recurrence{Frequency: models.FrequencyDaily, Hour: intPtr(9)}, testNow.Add(-time.Hour))
	stale := loadSchedule(t, db, s.ID)

	m := &fakeMaterializer{}
	r := newTestRunner(db, m, Options{Claim: true})

	result, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	// A second, overlapping tick still holding the old next_run loses the claim.
	state, _, err := r.execute(context.Background(), stale, testNow)
	assert.Equal(t, runSkipped, state)
	assert.ErrorIs(t, err, ErrClaimLost)
	assert.Equal(t, 1, m.callCount())

	got := loadSchedule(t, db, s.ID)
	assert.Equal(t, 1, got.TotalRuns)
	assert.Equal(t, uint64(1), r.Metrics()["skipped_runs"])
}

func TestRunSchedule(t *testing.T) {
	db := newTestDB(t)
	future := seedSchedule(t, db, "manual", models.Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: "friday"}, testNow.Add(48*time.Hour))

	m := &fakeMaterializer{}
	r := newTestRunner(db, m, Options{})

	id, err := r.RunSchedule(context.Background(), future.ID)
	require.NoError(t, err)
	assert.Equal(t, "report-manual", id)

	got := loadSchedule(t, db, future.ID)
	assert.Equal(t, 1, got.SuccessfulRuns)
	assert.True(t, time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC).Equal(got.NextRun), got.NextRun)

	_, err = r.RunSchedule(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, db.Model(&models.Schedule{}).Where("id = ?", future.ID).Update("is_active", false).Error)
	_, err = r.RunSchedule(context.Background(), future.ID)
	assert.ErrorIs(t, err, ErrNotDue)
	assert.Equal(t, 1, m.callCount())
}

func TestRunScheduleReturnsFailure(t *testing.T) {
	db := newTestDB(t)
	s := seedSchedule(t, db, "broken", models.Recurrence{Frequency: models.FrequencyDaily}, testNow)

	r := newTestRunner(db, &fakeMaterializer{fail: map[string]error{"broken": errors.New("boom")}}, Options{})
	_, err := r.RunSchedule(context.Background(), s.ID)
	require.EqualError(t, err, "boom")
	assert.Equal(t, 1, loadSchedule(t, db, s.ID).FailedRuns)
}

func TestNotifierFailureIsNotFatal(t *testing.T) {
	db := newTestDB(t)
	seedSchedule(t, db, "ok", models.Recurrence{Frequency: models.FrequencyDaily}, testNow)
	seedSchedule(t, db, "broken", models.Recurrence{Frequency: models.FrequencyDaily}, testNow)

	n := &recordingNotifier{}
	m := &fakeMaterializer{fail: map[string]error{"broken": errors.New("boom")}}
	result, err := newTestRunner(db, m, Options{Notifier: n}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, n.outcomes, 2)
	failed := 0
	for _, o := range n.outcomes {
		if o.Failed() {
			failed++
			assert.Equal(t, "broken", o.Schedule.Name)
			assert.True(t, o.NextRun.After(testNow))
		} else {
			assert.Equal(t, "report-ok", o.ReportID)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunnerUsesConfiguredLocation(t *testing.T) {
	db := newTestDB(t)
	loc := time.FixedZone("EST", -5*60*60)
	s := seedSchedule(t, db, "local", models.Recurrence{Frequency: models.FrequencyDaily, Hour: intPtr(9)}, testNow.Add(-time.Hour))

	_, err := newTestRunner(db, &fakeMaterializer{}, Options{Location: loc}).Tick(context.Background())
	require.NoError(t, err)

	// 10:00 UTC is 05:00 EST, so the next 09:00 EST is tomorrow 14:00 UTC.
	got := loadSchedule(t, db, s.ID)
	assert.True(t, time.Date(2024, time.March, 14, 14, 0, 0, 0, time.UTC).Equal(got.NextRun), got.NextRun)
}

func TestTickRecordsRunAfterCancellation(t *testing.T) {
	db := newTestDB(t)
	s := seedSchedule(t, db, "committed", models.Recurrence{Frequency: models.FrequencyDaily, Hour: intPtr(9)}, testNow.Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The report commits, then the tick is cancelled before bookkeeping.
	m := &fakeMaterializer{onCall: func(report.Request) { cancel() }}

	result, err := newTestRunner(db, m, Options{}).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	got := loadSchedule(t, db, s.ID)
	assert.Equal(t, 1, got.TotalRuns)
	assert.Equal(t, 1, got.SuccessfulRuns)
	assert.Equal(t, "report-committed", got.LastGeneratedReportID)
	assert.True(t, time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC).Equal(got.NextRun), got.NextRun)

	var runs int64
	require.NoError(t, db.Model(&models.ScheduleRun{}).Where("schedule_id = ?", s.ID).Count(&runs).Error)
	assert.Equal(t, int64(1), runs)
}

func TestTickFindsDueScheduleStoredWithOffset(t *testing.T) {
	db := newTestDB(t)
	// 11:30 at +02:00 is 09:30 UTC, half an hour before testNow.
	cest := time.FixedZone("CEST", 2*60*60)
	s := seedSchedule(t, db, "offset", models.Recurrence{Frequency: models.FrequencyDaily}, time.Date(2024, time.March, 13, 11, 30, 0, 0, cest))

	var raw string
	require.NoError(t, db.Raw("SELECT CAST(next_run AS TEXT) FROM schedules WHERE id = ?", s.ID).Scan(&raw).Error)
	assert.Contains(t, raw, "+00:00")

	m := &fakeMaterializer{}
	result, err := newTestRunner(db, m, Options{}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Due)
	assert.Equal(t, 1, m.callCount())
}
