package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ordercast/pkg/logx"
)

// Job is one scheduled run. ctx is canceled when the service stops.
type Job func(ctx context.Context)

type jobDef struct {
	name       string
	spec       ParsedSpec
	firstDelay time.Duration
	run        Job
}

type Service struct {
	log logx.Logger
	loc *time.Location

	mu     sync.Mutex
	defs   []jobDef
	c      *cron.Cron
	cancel context.CancelFunc
}

func New(log logx.Logger, loc *time.Location) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{log: log, loc: loc}
}

// Add registers a job. Jobs added after Start take effect on the next Start.
// A positive firstDelay overrides the time of the first run.
func (s *Service) Add(name string, spec ParsedSpec, firstDelay time.Duration, run Job) error {
	if run == nil {
		return fmt.Errorf("job %q: nil func", name)
	}
	if _, err := spec.Schedule(); err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, jobDef{name: name, spec: spec, firstDelay: firstDelay, run: run})
	return nil
}

// Start begins triggering registered jobs.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.c = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})),
	)

	now := time.Now().In(s.loc)
	for _, d := range s.defs {
		sched, _ := d.spec.Schedule()
		if d.firstDelay > 0 {
			sched = &firstRunSchedule{base: sched, first: now.Add(d.firstDelay)}
		}
		s.c.Schedule(sched, s.wrap(jobCtx, d))
		s.log.Info("job scheduled",
			logx.String("job", d.name),
			logx.String("schedule", d.spec.String()),
			logx.Duration("first_delay", d.firstDelay),
		)
	}
	s.c.Start()
}

// Stop stops triggering and waits for running jobs until ctx expires, then
// cancels them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("running jobs did not finish before stop deadline; canceling")
	}
	cancel()
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) wrap(ctx context.Context, d jobDef) cron.Job {
	log := s.log.With(logx.String("job", d.name))
	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error("job panic",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		start := time.Now()
		d.run(ctx)
		log.Debug("job finished", logx.Duration("took", time.Since(start)))
	})
}

// firstRunSchedule overrides the first run time, then delegates to base.
type firstRunSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstRunSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// cronLogger adapts logx to cron.Logger for the skip notices.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
