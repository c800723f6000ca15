package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contextlens/contextlens/internal/core"
)

// ErrTaskNotFound is returned by GetTask for unknown ids.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskNotPending is returned by ClaimTask when the task already left
// the pending state.
var ErrTaskNotPending = errors.New("task is not pending")

const taskColumns = `id, kind, prompt, search_enabled, status, result_json, error, created_at, completed_at`

// DefaultTaskListLimit bounds ListTasks when the caller passes no limit.
const DefaultTaskListLimit = 50

// SaveTask upserts the current snapshot of a task. The batch runner calls it
// on every lifecycle transition.
func (s *Store) SaveTask(ctx context.Context, task *core.BackgroundTask) error {
	if err := s.ready(); err != nil {
		return err
	}
	if task == nil {
		return errors.New("task is required")
	}
	ctx = orBackground(ctx)

	snap := task.Snapshot()

	var resultJSON sql.NullString
	if snap.Result != nil {
		data, err := json.Marshal(snap.Result)
		if err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	var errMsg sql.NullString
	if snap.Error != "" {
		errMsg = sql.NullString{String: snap.Error, Valid: true}
	}

	var completedAt sql.NullInt64
	if snap.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: snap.CompletedAt.UTC().UnixMilli(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			prompt = excluded.prompt,
			search_enabled = excluded.search_enabled,
			status = excluded.status,
			result_json = excluded.result_json,
			error = excluded.error,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`, snap.ID, string(snap.Kind), snap.Prompt, boolToInt(snap.SearchEnabled), string(snap.Status),
		resultJSON, errMsg, snap.CreatedAt.UTC().UnixMilli(), completedAt, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store task: %w", err)
	}
	return nil
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*core.BackgroundTask, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("task id is required")
	}

	row := s.DB.QueryRowContext(orBackground(ctx), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil, err
	}
	return task, nil
}

// ClaimTask marks a pending task as processing in one conditional update,
// so of several runners racing for the same id only one wins.
func (s *Store) ClaimTask(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	ctx = orBackground(ctx)

	result, err := s.DB.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(core.TaskProcessing), time.Now().UTC().UnixMilli(), id, string(core.TaskPending))
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	if claimed == 1 {
		return nil
	}

	var status string
	err = s.DB.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	case err != nil:
		return fmt.Errorf("claim task: %w", err)
	}
	return fmt.Errorf("%w: %s is %s", ErrTaskNotPending, id, status)
}

// ListTasks returns the newest tasks first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, limit int, status core.TaskStatus) ([]*core.BackgroundTask, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTaskListLimit
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(orBackground(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	tasks := []*core.BackgroundTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (*core.BackgroundTask, error) {
	var (
		snap          core.TaskSnapshot
		kind          string
		status        string
		searchEnabled int
		resultJSON    sql.NullString
		errMsg        sql.NullString
		createdAt     int64
		completedAt   sql.NullInt64
	)
	if err := row.Scan(&snap.ID, &kind, &snap.Prompt, &searchEnabled, &status, &resultJSON, &errMsg, &createdAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	snap.Kind = core.TaskKind(kind)
	snap.Status = core.TaskStatus(status)
	snap.SearchEnabled = searchEnabled != 0
	snap.CreatedAt = time.UnixMilli(createdAt).UTC()
	if completedAt.Valid {
		at := time.UnixMilli(completedAt.Int64).UTC()
		snap.CompletedAt = &at
	}
	if errMsg.Valid {
		snap.Error = errMsg.String
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var resp core.GenerationResponse
		if err := json.Unmarshal([]byte(resultJSON.String), &resp); err != nil {
			return nil, fmt.Errorf("decode task %s result: %w", snap.ID, err)
		}
		snap.Result = &resp
	}

	task, err := core.RestoreTask(snap)
	if err != nil {
		return nil, fmt.Errorf("restore task %s: %w", snap.ID, err)
	}
	return task, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
