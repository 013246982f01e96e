// Package scheduler provides CRON-based scheduling for dataset refreshes.
// It re-runs registered refresh jobs on a recurring schedule and skips a
// tick while the previous run of the same job is still in progress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gridiron-data/nflrefresh/internal/logger"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// Common errors
var (
	ErrNilJob         = errors.New("job is nil")
	ErrEmptyJobID     = errors.New("job id is required")
	ErrEmptySchedule  = errors.New("job schedule is required")
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNotStarted     = errors.New("scheduler not started")
	ErrJobNotFound    = errors.New("job not found")
)

// cronParser accepts standard 5-field expressions, an optional leading
// seconds field, and descriptors such as @daily.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCronExpression checks that expr is a valid 5 or 6 field CRON expression.
func ValidateCronExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return ErrEmptySchedule
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Runner performs one refresh.
type Runner interface {
	Refresh(ctx context.Context, req nflstats.Request) (*nflstats.Report, error)
}

// Job is a refresh request run on a schedule.
type Job struct {
	// ID uniquely identifies the job (required)
	ID string
	// Schedule is the CRON expression (required)
	Schedule string
	// Request is passed to the Runner on every tick
	Request nflstats.Request
	// Timeout bounds one run; zero means no limit
	Timeout time.Duration
}

type registeredJob struct {
	job     Job
	entryID cron.EntryID
	running atomic.Bool
}

// Scheduler manages scheduled refresh jobs.
type Scheduler struct {
	mu      sync.Mutex
	runner  Runner
	cron    *cron.Cron
	jobs    map[string]*registeredJob
	started bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler that runs jobs with runner.
func New(runner Runner) *Scheduler {
	cl := cronLogger{}
	return &Scheduler{
		runner: runner,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		jobs:    make(map[string]*registeredJob),
		baseCtx: context.Background(),
	}
}

// Register adds or replaces a job. Jobs may be registered after Start.
func (s *Scheduler) Register(job *Job) error {
	if job == nil {
		return ErrNilJob
	}
	if job.ID == "" {
		return ErrEmptyJobID
	}
	if err := ValidateCronExpression(job.Schedule); err != nil {
		return err
	}
	if err := job.Request.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok {
		s.cron.Remove(existing.entryID)
		delete(s.jobs, job.ID)
		logger.Info("scheduled job replaced", slog.String("job_id", job.ID))
	}

	rj := &registeredJob{job: *job}
	entryID, err := s.cron.AddFunc(job.Schedule, func() { s.run(rj) })
	if err != nil {
		return fmt.Errorf("scheduling job %s: %w", job.ID, err)
	}
	rj.entryID = entryID
	s.jobs[job.ID] = rj

	logger.Info("job registered",
		slog.String("job_id", job.ID),
		slog.String("schedule", job.Schedule),
		slog.String("mode", job.Request.Mode.String()),
		slog.Any("seasons", job.Request.Seasons),
	)
	return nil
}

// Unregister removes a job.
func (s *Scheduler) Unregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rj, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s.cron.Remove(rj.entryID)
	delete(s.jobs, id)
	logger.Info("job unregistered", slog.String("job_id", id))
	return nil
}

// run executes one tick of rj, skipping it while a previous run is active.
func (s *Scheduler) run(rj *registeredJob) {
	if !rj.running.CompareAndSwap(false, true) {
		logger.Warn("skipping scheduled refresh, previous run still in progress",
			slog.String("job_id", rj.job.ID),
		)
		return
	}
	defer rj.running.Store(false)

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if rj.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rj.job.Timeout)
		defer cancel()
	}

	start := time.Now()
	logger.Info("scheduled refresh triggered", slog.String("job_id", rj.job.ID))

	report, err := s.runner.Refresh(ctx, rj.job.Request)
	if err != nil {
		logger.Error("scheduled refresh rejected",
			slog.String("job_id", rj.job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("scheduled refresh completed",
		slog.String("job_id", rj.job.ID),
		slog.String("run_id", report.RunID),
		slog.String("status", report.Status()),
		slog.Int("record_count", report.TotalRecords()),
		slog.Duration("duration", time.Since(start)),
	)
}

// Start begins executing scheduled jobs. Runs inherit ctx's values but not
// its cancellation: an in-flight refresh is only cancelled when Stop gives
// up waiting for it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron.Start()
	s.started = true

	logger.Info("scheduler started", slog.Int("job_count", len(s.jobs)))
	return nil
}

// Stop halts the scheduler, waits for running jobs until ctx is done and
// removes every registered job.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	for id, rj := range s.jobs {
		s.cron.Remove(rj.entryID)
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !wasStarted {
		return nil
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("scheduler stopped")
		s.cancelRuns()
		return nil
	case <-ctx.Done():
		// abandon in-flight runs
		s.cancelRuns()
		logger.Warn("scheduler stop timed out waiting for running jobs")
		return ctx.Err()
	}
}

func (s *Scheduler) cancelRuns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// IsStarted reports whether the scheduler is running.
func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// IsRunning reports whether a run of job id is in progress.
func (s *Scheduler) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj, ok := s.jobs[id]
	return ok && rj.running.Load()
}

// HasJob reports whether job id is registered.
func (s *Scheduler) HasJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// JobIDs returns the registered job ids, sorted.
func (s *Scheduler) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextRun returns the next scheduled time of job id.
func (s *Scheduler) NextRun(id string) (time.Time, error) {
	s.mu.Lock()
	started := s.started
	rj, ok := s.jobs[id]
	s.mu.Unlock()

	if !started {
		return time.Time{}, ErrNotStarted
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return s.cron.Entry(rj.entryID).Next, nil
}

// cronLogger adapts the package logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err.Error()}, keysAndValues...)
	logger.Error("cron: "+msg, args...)
}

var _ cron.Logger = cronLogger{}
