package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reportengine/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Ticker is the entry point a Trigger drives.
type Ticker interface {
	Tick(ctx context.Context) (TickResult, error)
}

// Trigger invokes a Ticker on a cron spec such as "@hourly" or "0 * * * *".
type Trigger struct {
	cron    *cron.Cron
	job     cron.Job
	ticker  Ticker
	log     logrus.FieldLogger
	running atomic.Bool

	mutex  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewTrigger(ticker Ticker, spec string, loc *time.Location, overlap string, log logrus.FieldLogger) (*Trigger, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger spec %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{log: log}
	wrappers := []cron.JobWrapper{cron.Recover(cl)}
	if overlap == config.OverlapSkip {
		wrappers = append(wrappers, cron.SkipIfStillRunning(cl))
	}

	t := &Trigger{
		cron:   cron.New(cron.WithLocation(loc), cron.WithLogger(cl)),
		ticker: ticker,
		log:    log,
		ctx:    context.Background(),
		cancel: func() {},
	}
	t.job = cron.NewChain(wrappers...).Then(cron.FuncJob(t.fire))
	t.cron.Schedule(schedule, t.job)
	return t, nil
}

func (t *Trigger) fire() {
	t.mutex.Lock()
	ctx := t.ctx
	t.mutex.Unlock()

	result, err := t.ticker.Tick(ctx)
	if err != nil {
		t.log.WithError(err).Error("Scheduler tick failed")
		return
	}
	if result.Failed > 0 {
		t.log.WithField("failed", result.Failed).Warn("Scheduler tick finished with failed schedules")
	}
}

func (t *Trigger) Start() {
	if t.running.CompareAndSwap(false, true) {
		// Each start gets its own context; Stop cancels it.
		t.mutex.Lock()
		t.ctx, t.cancel = context.WithCancel(context.Background())
		t.mutex.Unlock()
		t.cron.Start()
		t.log.Info("Scheduler trigger started")
	}
}

// Stop cancels the running tick, if any, and waits for it to return or for
// ctx to expire.
func (t *Trigger) Stop(ctx context.Context) error {
	if !t.running.CompareAndSwap(true, false) {
		return nil
	}
	t.mutex.Lock()
	t.cancel()
	t.mutex.Unlock()
	select {
	case <-t.cron.Stop().Done():
		t.log.Info("Scheduler trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the trigger fires next. It is zero before Start.
func (t *Trigger) Next() time.Time {
	entries := t.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
