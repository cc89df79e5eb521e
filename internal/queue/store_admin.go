package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reelsmith/internal/services"
)

// Retry moves a failed job back to waiting so workers pick it up again.
func (s *Store) Retry(ctx context.Context, queueName, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, error_message = NULL, progress_percent = 0,
            progress_message = NULL, started_at = NULL, finished_at = NULL, updated_at = ?
         WHERE queue = ? AND id = ? AND state = ?`,
		StateWaiting, now, queueName, id, StateFailed,
	)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrValidation, "queue", "retry", fmt.Sprintf("job %s is not failed or does not exist", id), nil)
	}
	return nil
}

// RetryAllFailed moves every failed job in the queue back to waiting.
func (s *Store) RetryAllFailed(ctx context.Context, queueName string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, error_message = NULL, progress_percent = 0,
            progress_message = NULL, started_at = NULL, finished_at = NULL, updated_at = ?
         WHERE queue = ? AND state = ?`,
		StateWaiting, now, queueName, StateFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a job unless it is active.
func (s *Store) Remove(ctx context.Context, queueName, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE queue = ? AND id = ? AND state != ?`,
		queueName, id, StateActive,
	)
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		job, getErr := s.GetJob(ctx, queueName, id)
		if getErr == nil && job != nil && job.State == StateActive {
			return false, services.Wrap(services.ErrValidation, "queue", "remove", fmt.Sprintf("job %s is active", id), nil)
		}
		return false, nil
	}
	return true, nil
}

// Clean deletes terminal jobs in the given state older than the grace period.
func (s *Store) Clean(ctx context.Context, queueName string, state State, grace time.Duration) (int64, error) {
	if !state.IsTerminal() {
		return 0, services.Wrap(services.ErrValidation, "queue", "clean", fmt.Sprintf("state %q is not terminal", state), nil)
	}
	cutoff := time.Now().UTC().Add(-grace).Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE queue = ? AND state = ? AND updated_at < ?`,
		queueName, state, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("clean jobs: %w", err)
	}
	return res.RowsAffected()
}

// Drain removes all jobs that have not started: waiting and delayed.
func (s *Store) Drain(ctx context.Context, queueName string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE queue = ? AND state IN (?, ?)`,
		queueName, StateWaiting, StateDelayed,
	)
	if err != nil {
		return 0, fmt.Errorf("drain queue: %w", err)
	}
	return res.RowsAffected()
}

// Obliterate removes every job in the queue regardless of state, plus the
// queue's pause flag.
func (s *Store) Obliterate(ctx context.Context, queueName string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE queue = ?`, queueName)
	if err != nil {
		return 0, fmt.Errorf("obliterate queue: %w", err)
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM queues WHERE name = ?`, queueName); err != nil {
		return 0, fmt.Errorf("remove queue row: %w", err)
	}
	return res.RowsAffected()
}

// Pause stops workers from claiming jobs in the queue. Jobs already active
// run to completion.
func (s *Store) Pause(ctx context.Context, queueName string) error {
	return s.setPaused(ctx, queueName, true)
}

// Resume re-enables claiming for a paused queue.
func (s *Store) Resume(ctx context.Context, queueName string) error {
	return s.setPaused(ctx, queueName, false)
}

func (s *Store) setPaused(ctx context.Context, queueName string, paused bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	flag := 0
	if paused {
		flag = 1
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO queues (name, paused, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET paused = excluded.paused, updated_at = excluded.updated_at`,
		queueName, flag, now,
	)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}

// IsPaused reports whether claiming is disabled for the queue.
func (s *Store) IsPaused(ctx context.Context, queueName string) (bool, error) {
	var paused int
	err := s.db.QueryRowContext(ctx, `SELECT paused FROM queues WHERE name = ?`, queueName).Scan(&paused)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query pause flag: %w", err)
	}
	return paused != 0, nil
}

// Stats returns a count of jobs grouped by state for the queue.
func (s *Store) Stats(ctx context.Context, queueName string) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM jobs WHERE queue = ? GROUP BY state`, queueName)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// QueueNames lists every queue that has jobs or a pause flag.
func (s *Store) QueueNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT name FROM (
            SELECT DISTINCT queue AS name FROM jobs
            UNION
            SELECT name FROM queues
        ) ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Describe aggregates queue state for CLI presentation.
func (s *Store) Describe(ctx context.Context, queueName string) (QueueInfo, error) {
	info := QueueInfo{Name: queueName}

	paused, err := s.IsPaused(ctx, queueName)
	if err != nil {
		return info, err
	}
	info.Paused = paused

	info.Counts, err = s.Stats(ctx, queueName)
	if err != nil {
		return info, err
	}

	var oldestRaw, updatedRaw sql.NullString
	err = s.db.QueryRowContext(
		ctx,
		`SELECT MIN(created_at), MAX(updated_at) FROM jobs WHERE queue = ?`,
		queueName,
	).Scan(&oldestRaw, &updatedRaw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("queue bounds: %w", err)
	}
	info.Oldest = parseOptionalTime(oldestRaw)
	info.Updated = parseOptionalTime(updatedRaw)
	return info, nil
}
