package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnqueueOption adjusts how a job is enqueued.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	delay time.Duration
}

// WithDelay schedules the job to become claimable after the given duration.
// The job sits in the delayed state until due.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		o.delay = delay
	}
}

// Enqueue inserts a job into the named queue. The payload is JSON encoded.
func (s *Store) Enqueue(ctx context.Context, queueName string, payload any, opts ...EnqueueOption) (string, error) {
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		return "", errors.New("queue name is required")
	}

	var options enqueueOptions
	for _, opt := range opts {
		opt(&options)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	state := StateWaiting
	var notBefore any
	if options.delay > 0 {
		state = StateDelayed
		notBefore = now.Add(options.delay).Format(time.RFC3339Nano)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, queue, state, payload, attempts, progress_percent, progress_message,
            error_message, created_at, updated_at, not_before
        ) VALUES (?, ?, ?, ?, 0, 0, NULL, NULL, ?, ?, ?)`,
		id,
		queueName,
		state,
		string(encoded),
		timestamp,
		timestamp,
		notBefore,
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// GetJob fetches a job by queue and identifier.
func (s *Store) GetJob(ctx context.Context, queueName, id string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE queue = ? AND id = ?`,
		queueName, id,
	)
	job, err := s.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs for a queue filtered by state set (or all jobs when no
// state is provided), ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, queueName string, states ...State) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs WHERE queue = ?`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause, queueName)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, 0, len(states)+1)
		args = append(args, queueName)
		for _, state := range states {
			args = append(args, state)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` AND state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically claims the oldest claimable job in the queue, marking
// it active with a fresh heartbeat. Paused queues yield nothing. Delayed jobs
// whose not-before time has passed are promoted first.
func (s *Store) ClaimNext(ctx context.Context, queueName string) (*Job, error) {
	ctx = ensureContext(ctx)

	paused, err := s.IsPaused(ctx, queueName)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, nil
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, not_before = NULL, updated_at = ?
         WHERE queue = ? AND state = ? AND not_before IS NOT NULL AND not_before <= ?`,
		StateWaiting, timestamp, queueName, StateDelayed, timestamp,
	); err != nil {
		return nil, fmt.Errorf("promote delayed jobs: %w", err)
	}

	var claimed *Job
	claimErr := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin claim tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(
			ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE queue = ? AND state = ? ORDER BY created_at LIMIT 1`,
			queueName, StateWaiting,
		)
		job, err := s.scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			claimed = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("select claimable job: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`UPDATE jobs SET state = ?, attempts = attempts + 1, started_at = ?,
                last_heartbeat = ?, error_message = NULL, updated_at = ?
             WHERE id = ? AND state = ?`,
			StateActive, timestamp, timestamp, timestamp, job.ID, StateWaiting,
		)
		if err != nil {
			return fmt.Errorf("mark job active: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			claimed = nil
			return tx.Commit()
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit claim: %w", err)
		}

		job.State = StateActive
		job.Attempts++
		job.StartedAt = &now
		job.LastHeartbeat = &now
		job.ErrorMessage = ""
		job.UpdatedAt = now
		claimed = job
		return nil
	})
	if claimErr != nil {
		return nil, claimErr
	}
	return claimed, nil
}

// UpdateProgress persists progress for an active job.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent float64, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET progress_percent = ?, progress_message = ?, updated_at = ? WHERE id = ?`,
		percent,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND state = ?`,
		now, now, id, StateActive,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// MarkCompleted transitions an active job to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, progress_percent = 100, finished_at = ?,
            last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		StateCompleted, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed transitions a job to failed recording the error message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, error_message = ?, finished_at = ?,
            last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		StateFailed, nullableString(message), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ReclaimStale returns active jobs whose heartbeat expired before cutoff to
// the waiting state so another worker can pick them up.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, last_heartbeat = NULL, started_at = NULL,
            progress_message = 'reclaimed after missed heartbeats', updated_at = ?
         WHERE state = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StateWaiting, now, StateActive, cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}
