// Package scheduler runs the booking sweeper and the semester transitions
// on their timers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iliyamo/hostel-occupancy/internal/service"
)

// Sweeper runs one booking expiry pass.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// SemesterRunner runs one round of semester transitions.
type SemesterRunner interface {
	Run(ctx context.Context) (service.RunResult, error)
}

// Options configures the job timers.
type Options struct {
	SweepInterval time.Duration
	// SemesterAt is the local time of day, "HH:MM", of the semester job.
	SemesterAt string
	Location   *time.Location
	// RunOnStart also runs both jobs once right after Start.
	RunOnStart bool
	// JobTimeout bounds a single run.  Defaults to 10 minutes.
	JobTimeout time.Duration
}

// Scheduler owns the gocron scheduler.  Each job runs in singleton mode
// so a slow run is never overlapped by its next tick.
type Scheduler struct {
	cron   gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// ParseAt parses "HH:MM" into hour and minute.
func ParseAt(v string) (uint, uint, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", v)
	}
	hour, err := strconv.ParseUint(h, 10, 8)
	if err != nil || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	minute, err := strconv.ParseUint(m, 10, 8)
	if err != nil || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return uint(hour), uint(minute), nil
}

// New registers the sweeper and semester jobs.  The jobs do not run until
// Start is called.
func New(sweeper Sweeper, semesters SemesterRunner, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 15 * time.Minute
	}
	if opts.SemesterAt == "" {
		opts.SemesterAt = "00:05"
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	hour, minute, err := ParseAt(opts.SemesterAt)
	if err != nil {
		return nil, err
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(opts.Location))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: cron, ctx: ctx, cancel: cancel, logger: logger}

	common := []gocron.JobOption{gocron.WithSingletonMode(gocron.LimitModeReschedule)}
	if opts.RunOnStart {
		common = append(common, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err = cron.NewJob(
		gocron.DurationJob(opts.SweepInterval),
		gocron.NewTask(s.run("booking-sweep", opts.JobTimeout, func(ctx context.Context) (any, error) {
			return sweeper.Sweep(ctx)
		})),
		append([]gocron.JobOption{gocron.WithName("booking-sweep")}, common...)...,
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("register booking sweep: %w", err)
	}

	_, err = cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(s.run("semester-transition", opts.JobTimeout, func(ctx context.Context) (any, error) {
			return semesters.Run(ctx)
		})),
		append([]gocron.JobOption{gocron.WithName("semester-transition")}, common...)...,
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("register semester transition: %w", err)
	}
	return s, nil
}

func (s *Scheduler) run(name string, timeout time.Duration, fn func(ctx context.Context) (any, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		started := time.Now()
		res, err := fn(ctx)
		if err != nil {
			s.logger.Error("job failed", "job", name, "error", err, "took", time.Since(started))
			return
		}
		s.logger.Debug("job finished", "job", name, "result", res, "took", time.Since(started))
	}
}

// Start starts the timers.
func (s *Scheduler) Start() { s.cron.Start() }

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, j := range s.cron.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.cron.Shutdown()
}
