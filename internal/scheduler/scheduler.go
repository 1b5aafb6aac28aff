// Package scheduler polls scheduled tasks and runs their prompts through
// the agent. One ticker goroutine drives everything; an overlap guard
// skips a tick rather than queueing it when the previous one is still
// running.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/figaro-ai/figaro/internal/data"
)

// DefaultTickInterval is how often due tasks are polled.
const DefaultTickInterval = 15 * time.Second

// resultTruncateLen caps the result text carried in notifications and
// last_result.
const resultTruncateLen = 500

// PromptRunner executes one task prompt against a conversation.
type PromptRunner interface {
	RunPrompt(ctx context.Context, conversationID, prompt string) (string, error)
}

// Notification describes one finished task run, fanned out to listeners.
type Notification struct {
	TaskID         string
	ConversationID string
	Prompt         string
	Result         string
	Outcome        string
}

// Listener receives task notifications. A panicking listener is recovered
// and skipped so it cannot block the others or the scheduler.
type Listener func(Notification)

// Scheduler owns the task lifecycle: creation, polling, execution,
// run logging and notification fan-out.
type Scheduler struct {
	store  *data.Store
	runner PromptRunner
	tick   time.Duration
	log    zerolog.Logger

	mu        sync.Mutex
	listeners []Listener
	running   bool

	ticking  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler. tick of zero uses the default polling period.
func New(store *data.Store, runner PromptRunner, tick time.Duration, log zerolog.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Scheduler{
		store:  store,
		runner: runner,
		tick:   tick,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start launches the polling goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.loop()
	s.log.Info().Dur("tick", s.tick).Msg("scheduler started")
}

// Stop shuts the polling goroutine down. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.running {
			return
		}
		close(s.stopCh)
		s.running = false
		s.log.Info().Msg("scheduler stopped")
	})
}

// Subscribe registers a listener for task-completion notifications.
func (s *Scheduler) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Tick polls due tasks and runs each synchronously. Overlapping ticks are
// skipped: a slow run costs a polling interval, never a second concurrent
// tick.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Debug().Msg("tick still running, skipping")
		return
	}
	defer s.ticking.Store(false)

	now := time.Now().UTC()
	due, err := s.store.DueTasks(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("query due tasks")
		return
	}

	for _, task := range due {
		s.runTask(ctx, task, now)
	}
}

// runTask executes one task and records the outcome. One task's failure
// never aborts the tick or the other tasks.
func (s *Scheduler) runTask(ctx context.Context, task *data.ScheduledTask, now time.Time) {
	log := s.log.With().Str("task", task.ID).Logger()

	conversationID := task.ConversationID
	if conversationID == "" {
		conv, err := s.store.CreateConversation(ctx, "task: "+truncate(task.Prompt, 60))
		if err != nil {
			log.Error().Err(err).Msg("create task conversation")
			return
		}
		conversationID = conv.ID
	}

	start := time.Now()
	result, runErr := s.runner.RunPrompt(ctx, conversationID, task.Prompt)
	duration := time.Since(start)

	outcome := data.RunSuccess
	detail := truncate(result, resultTruncateLen)
	if runErr != nil {
		outcome = data.RunError
		detail = truncate(runErr.Error(), resultTruncateLen)
	}

	// The run log row is written regardless of outcome.
	if err := s.store.AppendRunLog(ctx, &data.TaskRun{
		TaskID:   task.ID,
		RanAt:    now,
		Duration: duration,
		Outcome:  outcome,
		Detail:   detail,
	}); err != nil {
		log.Error().Err(err).Msg("append run log")
	}

	status, next := s.afterRun(task, now, runErr)
	// A pause issued while the run was in flight sticks; the run itself
	// still finishes and is logged. Once tasks complete regardless.
	if status == data.TaskActive {
		if cur, err := s.store.GetTask(ctx, task.ID); err == nil && cur.Status == data.TaskPaused {
			status = data.TaskPaused
		}
	}
	if err := s.store.UpdateAfterRun(ctx, task.ID, status, next, now, detail); err != nil {
		log.Error().Err(err).Msg("update task after run")
	}

	log.Info().
		Str("outcome", outcome).
		Str("status", string(status)).
		Dur("duration", duration).
		Msg("task ran")

	if task.Notify && task.ConversationID != "" {
		s.notify(Notification{
			TaskID:         task.ID,
			ConversationID: task.ConversationID,
			Prompt:         task.Prompt,
			Result:         detail,
			Outcome:        outcome,
		})
	}
}

// afterRun computes the task's post-run status and next eligible time.
// An errored run parks the task in error status until manually resumed;
// recurring kinds still get a recomputed next time so resume works.
func (s *Scheduler) afterRun(task *data.ScheduledTask, now time.Time, runErr error) (data.TaskStatus, *time.Time) {
	var next *time.Time
	switch task.Kind {
	case data.TaskOnce:
		next = nil
	case data.TaskInterval:
		if ms, err := strconv.Atoi(task.Value); err == nil && ms > 0 {
			t := now.Add(time.Duration(ms) * time.Millisecond)
			next = &t
		}
	case data.TaskCron:
		if sched, err := cron.ParseStandard(task.Value); err == nil {
			t := sched.Next(now)
			next = &t
		}
	}

	if runErr != nil {
		return data.TaskError, next
	}
	if task.Kind == data.TaskOnce {
		return data.TaskCompleted, nil
	}
	return data.TaskActive, next
}

// notify fans a notification out to every listener, recovering panics per
// listener.
func (s *Scheduler) notify(n Notification) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					s.log.Warn().Any("panic", rec).Msg("notification listener panicked")
				}
			}()
			l(n)
		}()
	}
}

// Create validates and persists a new scheduled task. conversationID may
// be empty; each run then gets a fresh conversation.
func (s *Scheduler) Create(ctx context.Context, conversationID, prompt, kind, value string, notify bool) (*data.ScheduledTask, error) {
	next, err := firstRun(data.TaskKind(kind), value, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	task := &data.ScheduledTask{
		ConversationID: conversationID,
		Prompt:         prompt,
		Kind:           data.TaskKind(kind),
		Value:          value,
		Status:         data.TaskActive,
		Notify:         notify,
		NextRunAt:      next,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	s.log.Info().Str("task", task.ID).Str("kind", kind).Msg("task created")
	return task, nil
}

// firstRun validates a schedule and computes its first eligible time.
func firstRun(kind data.TaskKind, value string, now time.Time) (*time.Time, error) {
	switch kind {
	case data.TaskOnce:
		at, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("once value must be an RFC3339 timestamp: %w", err)
		}
		at = at.UTC()
		return &at, nil
	case data.TaskInterval:
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("interval value must be a positive millisecond count, got %q", value)
		}
		t := now.Add(time.Duration(ms) * time.Millisecond)
		return &t, nil
	case data.TaskCron:
		sched, err := cron.ParseStandard(value)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", value, err)
		}
		t := sched.Next(now)
		return &t, nil
	default:
		return nil, fmt.Errorf("unknown schedule kind %q", kind)
	}
}

// List returns all tasks.
func (s *Scheduler) List(ctx context.Context) ([]*data.ScheduledTask, error) {
	return s.store.ListTasks(ctx)
}

// Runs returns a task's run log.
func (s *Scheduler) Runs(ctx context.Context, taskID string, limit int) ([]*data.TaskRun, error) {
	return s.store.ListRuns(ctx, taskID, limit)
}

// Pause stops a task from being polled. Its next eligible time is kept so
// resume can decide what to do with it.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	return s.store.SetTaskStatus(ctx, id, data.TaskPaused, nil, true)
}

// Resume reactivates a paused or errored task. Recurring kinds get their
// next time recomputed from now; a once task keeps its stored time.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.Kind == data.TaskOnce {
		return s.store.SetTaskStatus(ctx, id, data.TaskActive, nil, true)
	}
	next, err := firstRun(task.Kind, task.Value, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.store.SetTaskStatus(ctx, id, data.TaskActive, next, false)
}

// Cancel deletes a task and its run log.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	return s.store.DeleteTask(ctx, id)
}

// RunNow executes a task immediately, regardless of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	s.runTask(ctx, task, time.Now().UTC())
	return nil
}

// CreateTask adapts Create to the capability-tool interface: the model
// schedules work without a pre-existing conversation.
func (s *Scheduler) CreateTask(ctx context.Context, prompt, kind, value string, notify bool) (string, error) {
	task, err := s.Create(ctx, "", prompt, kind, value, notify)
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

// CancelTask adapts Cancel to the capability-tool interface.
func (s *Scheduler) CancelTask(ctx context.Context, id string) error {
	return s.Cancel(ctx, id)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
