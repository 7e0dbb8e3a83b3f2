// Package schedule runs periodic maintenance jobs (registry sweep, refresh-token retention,
// blacklist purge, audit retention) under the lifetime of a context.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one named periodic task. Fn may overlap with the same work triggered from outside the
// scheduler, such as the operator sweep endpoint.
type Job struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error
}

// TickerFunc returns a tick channel and a stop function. Tests inject a manual one.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Observer is told about every completed run.
type Observer func(name string, took time.Duration, err error)

// Scheduler owns a fixed set of jobs.
type Scheduler struct {
	log       *slog.Logger
	newTicker TickerFunc
	observe   Observer

	mu   sync.RWMutex
	jobs map[string]Job
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTicker replaces the time.Ticker source.
func WithTicker(f TickerFunc) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.newTicker = f
		}
	}
}

// WithObserver registers a run observer (metrics).
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observe = o }
}

// New returns an empty Scheduler.
func New(log *slog.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Scheduler{log: log, newTicker: systemTicker, jobs: make(map[string]Job)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add registers j. Adding after Run has started has no effect on the running loops.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Fn == nil || j.Interval <= 0 {
		return fmt.Errorf("schedule: invalid job %q", j.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("schedule: duplicate job %q", j.Name)
	}
	s.jobs[j.Name] = j
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

// Run starts one loop per job and blocks until ctx is done and every loop has returned.
// A failing job is logged and retried on its next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	s.log.Info("schedule.start", "jobs", len(jobs))

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, j)
		}()
	}
	wg.Wait()

	s.log.Info("schedule.stop")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	tick, stop := s.newTicker(j.Interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_ = s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	start := time.Now()
	err := j.Fn(ctx)
	took := time.Since(start)

	if err != nil && ctx.Err() == nil {
		s.log.Error("schedule.job.fail", "job", j.Name, "err", err, "duration_ms", took.Milliseconds())
	} else {
		s.log.Debug("schedule.job.done", "job", j.Name, "duration_ms", took.Milliseconds())
	}
	if s.observe != nil {
		s.observe(j.Name, took, err)
	}
	return err
}
