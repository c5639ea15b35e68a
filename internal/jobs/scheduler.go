// Package jobs runs the periodic sweeps of the lifecycle core on cron
// schedules: expired exchange rates, due renewals and lapsed domains.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"billing-lifecycle/internal/metrics"
	"billing-lifecycle/pkg/logger"
)

// Job is one named unit of periodic work.
type Job struct {
	Name string
	// Spec is a robfig/cron expression, for example "@every 1h".
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job
}

func NewScheduler(log *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cl := cronLogger{log: log.Named("cron")}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		log:     log,
		metrics: m,
		timeout: timeout,
		jobs:    make(map[string]Job),
	}
}

// Add schedules job. An empty Spec registers the job for RunNow only.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	if job.Spec != "" {
		if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.run(context.Background(), job) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
		}
	}
	s.jobs[job.Name] = job
	return nil
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, _ = logger.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, s.log).With(zap.String("job", job.Name))

	start := time.Now()
	err := job.Run(ctx)
	s.metrics.IncJob(job.Name, err == nil)
	if err != nil {
		log.Error("Job failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	log.Debug("Job finished", zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Job scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs or for ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.log.Info("Job scheduler stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
