package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a periodic maintenance task. Its context is cancelled when the Cron
// stops.
type Job func(ctx context.Context) error

// Cron runs named periodic jobs. A job still running when its next tick
// arrives is skipped and a panicking job is recovered and logged.
type Cron struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location, logger *slog.Logger) *Cron {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers job to run every interval, rounded down to whole seconds.
func (c *Cron) Every(name string, interval time.Duration, job Job) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return c.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), c.wrap(name, job))
}

// Daily registers job to run once a day at timeStr (HH:MM) in the cron's
// location.
func (c *Cron) Daily(name, timeStr string, job Job) (cron.EntryID, error) {
	spec, err := DailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return c.cron.AddFunc(spec, c.wrap(name, job))
}

func (c *Cron) Remove(id cron.EntryID) {
	c.cron.Remove(id)
}

func (c *Cron) Entries() int {
	return len(c.cron.Entries())
}

// Next reports when the entry runs next; zero if it is unknown or the cron
// has not started.
func (c *Cron) Next(id cron.EntryID) time.Time {
	return c.cron.Entry(id).Next
}

func (c *Cron) Start() {
	c.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (c *Cron) Stop() {
	c.cancel()
	<-c.cron.Stop().Done()
}

func (c *Cron) wrap(name string, job Job) func() {
	return func() {
		if c.ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job(c.ctx); err != nil {
			c.logger.Warn("periodic job failed", "job", name, "error", err)
			return
		}
		c.logger.Debug("periodic job finished", "job", name, "elapsed", time.Since(start))
	}
}

// DailySpec converts HH:MM into a seconds-field cron expression.
func DailySpec(timeStr string) (string, error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("scheduler: invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("scheduler: invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("scheduler: invalid minute in %q", timeStr)
	}
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
