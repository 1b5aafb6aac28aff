package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind determines how a scheduled task's next run is computed.
type TaskKind string

const (
	TaskOnce     TaskKind = "once"
	TaskInterval TaskKind = "interval"
	TaskCron     TaskKind = "cron"
)

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

// ScheduledTask is a prompt the scheduler executes on a timetable.
type ScheduledTask struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Prompt         string     `json:"prompt"`
	Kind           TaskKind   `json:"kind"`
	Value          string     `json:"value"`
	Status         TaskStatus `json:"status"`
	Notify         bool       `json:"notify"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastResult     string     `json:"last_result,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskRun is one execution record of a scheduled task.
type TaskRun struct {
	ID       string        `json:"id"`
	TaskID   string        `json:"task_id"`
	RanAt    time.Time     `json:"ran_at"`
	Duration time.Duration `json:"duration"`
	Outcome  string        `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
}

const (
	RunSuccess = "success"
	RunError   = "error"
)

const taskColumns = `id, conversation_id, prompt, kind, value, status, notify,
	next_run_at, last_run_at, last_result, created_at, updated_at`

// CreateTask persists a new scheduled task.
func (s *Store) CreateTask(ctx context.Context, task *ScheduledTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = TaskActive
	}

	var convID sql.NullString
	if task.ConversationID != "" {
		convID = sql.NullString{String: task.ConversationID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks
		 (id, conversation_id, prompt, kind, value, status, notify, next_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, convID, task.Prompt, task.Kind, task.Value, task.Status,
		task.Notify, nullTime(task.NextRunAt), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a scheduled task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns all scheduled tasks, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]*ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// DueTasks returns active tasks whose next run time has arrived. Paused,
// completed and errored tasks never match, regardless of next_run_at.
func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]*ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?
		 ORDER BY next_run_at ASC`,
		TaskActive, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due tasks: %w", err)
	}
	return tasks, nil
}

// UpdateAfterRun records the result of a run and the task's next schedule.
// The caller decides status and next run; this writes exactly what it is
// given.
func (s *Store) UpdateAfterRun(ctx context.Context, id string, status TaskStatus, nextRun *time.Time, ranAt time.Time, result string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks
		 SET status = ?, next_run_at = ?, last_run_at = ?, last_result = ?, updated_at = ?
		 WHERE id = ?`,
		status, nullTime(nextRun), ranAt.UTC(), result, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update task after run: %w", err)
	}
	return requireRow(res, id)
}

// SetTaskStatus changes a task's lifecycle state, optionally replacing its
// next run time. Passing keepNext leaves next_run_at untouched.
func (s *Store) SetTaskStatus(ctx context.Context, id string, status TaskStatus, nextRun *time.Time, keepNext bool) error {
	var res sql.Result
	var err error
	if keepNext {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_tasks SET status = ?, updated_at = ? WHERE id = ?`,
			status, time.Now().UTC(), id,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_tasks SET status = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
			status, nullTime(nextRun), time.Now().UTC(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return requireRow(res, id)
}

// DeleteTask removes a task and, via cascade, its run log.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res, id)
}

// AppendRunLog records one execution of a task.
func (s *Store) AppendRunLog(ctx context.Context, run *TaskRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, task_id, ran_at, duration_ms, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.TaskID, run.RanAt.UTC(), run.Duration.Milliseconds(), run.Outcome, run.Detail,
	)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// ListRuns returns the run log of a task, newest first.
func (s *Store) ListRuns(ctx context.Context, taskID string, limit int) ([]*TaskRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, ran_at, duration_ms, outcome, detail
		 FROM task_runs WHERE task_id = ?
		 ORDER BY ran_at DESC LIMIT ?`,
		taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		run := &TaskRun{}
		var durationMS int64
		var detail sql.NullString
		if err := rows.Scan(&run.ID, &run.TaskID, &run.RanAt, &durationMS, &run.Outcome, &detail); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		run.Detail = detail.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*ScheduledTask, error) {
	task := &ScheduledTask{}
	var convID, lastResult sql.NullString
	var nextRun, lastRun sql.NullTime
	err := row.Scan(
		&task.ID, &convID, &task.Prompt, &task.Kind, &task.Value, &task.Status,
		&task.Notify, &nextRun, &lastRun, &lastResult, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.ConversationID = convID.String
	task.LastResult = lastResult.String
	if nextRun.Valid {
		t := nextRun.Time
		task.NextRunAt = &t
	}
	if lastRun.Valid {
		t := lastRun.Time
		task.LastRunAt = &t
	}
	return task, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}
