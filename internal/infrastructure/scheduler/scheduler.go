// Package scheduler runs the stock engine's periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockengine/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Job is one unit of periodic work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobConfig controls how often a job runs
type JobConfig struct {
	Interval   time.Duration
	Timeout    time.Duration // defaults to Interval
	RunOnStart bool
}

// JobStats reports the outcome of past runs
type JobStats struct {
	Runs      int64
	Failures  int64
	LastRunAt time.Time
	LastError string
}

type entry struct {
	job    Job
	config JobConfig

	mu    sync.Mutex
	stats JobStats
}

// Scheduler runs each registered job on its own ticker. A job never
// overlaps with itself: a tick that fires during a run is dropped.
type Scheduler struct {
	logger  *zap.Logger
	entries []*entry

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates an empty scheduler
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds a job. Jobs must be registered before Start.
func (s *Scheduler) Register(job Job, cfg JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrSchedulerRunning
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("%s: %w", job.Name(), ErrInvalidInterval)
	}
	for _, e := range s.entries {
		if e.job.Name() == job.Name() {
			return fmt.Errorf("%s: %w", job.Name(), ErrDuplicateJob)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	s.entries = append(s.entries, &entry{job: job, config: cfg})
	return nil
}

// Start launches one loop per registered job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.entries)))
	return nil
}

// Stop cancels all loops and waits for in-flight runs, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether Start has been called without Stop
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Stats returns the run statistics of the named job
func (s *Scheduler) Stats(name string) (JobStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.job.Name() == name {
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.stats, true
		}
	}
	return JobStats{}, false
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	if e.config.RunOnStart {
		s.runOnce(ctx, e)
	}

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, e)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, e *entry) {
	name := e.job.Name()
	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	runCtx, span := telemetry.StartSpan(runCtx, "scheduler."+name, attribute.String("job.name", name))
	start := time.Now()
	err := s.safeRun(runCtx, e.job)
	telemetry.EndSpan(span, err)

	e.mu.Lock()
	e.stats.Runs++
	e.stats.LastRunAt = start
	e.stats.LastError = ""
	if err != nil {
		e.stats.Failures++
		e.stats.LastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Scheduled job completed",
		zap.String("job", name),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}
