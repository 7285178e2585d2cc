package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Task is a named periodic function.
type Task struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Emitter emits task lifecycle events.
// ext.Registry satisfies this interface via EmitTaskFired.
type Emitter interface {
	EmitTaskFired(ctx context.Context, task string, elapsed time.Duration, err error)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due tasks.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithEmitter sets the hook emitter.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// ErrDuplicateTask is returned by Add for a name already registered.
var ErrDuplicateTask = errors.New("zipcheck/cron: duplicate task")

type entry struct {
	task     Task
	schedule cronlib.Schedule
	next     time.Time
	lastRun  time.Time
	running  bool
}

// Scheduler runs tasks on a tick loop.
type Scheduler struct {
	emitter      Emitter
	logger       *slog.Logger
	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:       slog.Default(),
		tickInterval: 1 * time.Second,
		entries:      make(map[string]*entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. Its first run is the schedule's next activation
// after now.
func (s *Scheduler) Add(t Task, now time.Time) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("zipcheck/cron: task needs a name and a run function")
	}
	sched, err := ParseSchedule(t.Schedule)
	if err != nil {
		return fmt.Errorf("zipcheck/cron: task %q: parse schedule %q: %w", t.Name, t.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
	}
	s.entries[t.Name] = &entry{task: t, schedule: sched, next: sched.Next(now)}
	s.order = append(s.order, t.Name)
	return nil
}

// Next returns when a task runs next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.Int("tasks", len(s.order)),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for running tasks.
func (s *Scheduler) Stop(_ context.Context) error {
	s.stopped.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

// tickLoop fires on each tick interval and runs due tasks.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.RunDue(ctx, now.UTC())
		}
	}
}

// RunDue runs, synchronously, every task due at now and returns the
// names of the tasks it ran.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	var due []*entry
	for _, name := range s.order {
		e := s.entries[name]
		if e.next.After(now) {
			continue
		}
		if e.running {
			s.logger.Warn("cron task still running, skipping",
				slog.String("task", name),
			)
			e.next = e.schedule.Next(now)
			continue
		}
		e.running = true
		due = append(due, e)
	}
	s.mu.Unlock()

	fired := make([]string, 0, len(due))
	for _, e := range due {
		s.fire(ctx, e, now)
		fired = append(fired, e.task.Name)
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, e *entry, now time.Time) {
	start := time.Now()
	err := e.task.Run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	e.running = false
	e.lastRun = now
	e.next = e.schedule.Next(now)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron task failed",
			slog.String("task", e.task.Name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("cron task fired",
			slog.String("task", e.task.Name),
			slog.Duration("elapsed", elapsed),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitTaskFired(ctx, e.task.Name, elapsed, err)
	}
}
