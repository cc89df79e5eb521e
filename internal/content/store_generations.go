package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const generationColumns = "id, content_id, analysis_id, scene_index, start_time, end_time, status, progress_percent, provider_task_id, result_key, error_message, created_at, updated_at, started_at, completed_at"

// CreateGeneration inserts a new generation record in the pending state.
func (s *Store) CreateGeneration(ctx context.Context, gen *Generation) error {
	if gen == nil {
		return errors.New("generation is nil")
	}
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.Status == "" {
		gen.Status = GenerationPending
	}
	now := time.Now().UTC()
	gen.CreatedAt = now
	gen.UpdatedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO generations (
            id, content_id, analysis_id, scene_index, start_time, end_time,
            status, progress_percent, provider_task_id, result_key,
            error_message, created_at, updated_at, started_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gen.ID,
		gen.ContentID,
		nullableString(gen.AnalysisID),
		nullableInt(gen.SceneIndex),
		nullableFloat(gen.StartTime),
		nullableFloat(gen.EndTime),
		gen.Status,
		gen.ProgressPercent,
		nullableString(gen.ProviderTaskID),
		nullableString(gen.ResultKey),
		nullableString(gen.ErrorMessage),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nullableTime(gen.StartedAt),
		nullableTime(gen.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// UpdateGeneration persists changes to an existing generation.
func (s *Store) UpdateGeneration(ctx context.Context, gen *Generation) error {
	if gen == nil {
		return errors.New("generation is nil")
	}
	gen.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE generations
         SET status = ?, progress_percent = ?, provider_task_id = ?, result_key = ?,
             error_message = ?, updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		gen.Status,
		gen.ProgressPercent,
		nullableString(gen.ProviderTaskID),
		nullableString(gen.ResultKey),
		nullableString(gen.ErrorMessage),
		gen.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(gen.StartedAt),
		nullableTime(gen.CompletedAt),
		gen.ID,
	)
	if err != nil {
		return fmt.Errorf("update generation: %w", err)
	}
	return nil
}

// GetGeneration fetches a generation by identifier.
func (s *Store) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return gen, nil
}

// GetGenerations fetches multiple generations by identifier. Missing ids are
// simply absent from the result.
func (s *Store) GetGenerations(ctx context.Context, ids []string) (map[string]*Generation, error) {
	result := make(map[string]*Generation, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+generationColumns+` FROM generations WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get generations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		result[gen.ID] = gen
	}
	return result, rows.Err()
}

// GenerationsForAnalysis returns generations for an analysis ordered by scene index.
func (s *Store) GenerationsForAnalysis(ctx context.Context, analysisID string) ([]*Generation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+generationColumns+` FROM generations WHERE analysis_id = ? ORDER BY scene_index, created_at`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("generations for analysis: %w", err)
	}
	defer rows.Close()

	var gens []*Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, gen)
	}
	return gens, rows.Err()
}

func scanGeneration(scanner interface{ Scan(dest ...any) error }) (*Generation, error) {
	var (
		id              string
		contentID       string
		analysisID      sql.NullString
		sceneIndex      sql.NullInt64
		startTime       sql.NullFloat64
		endTime         sql.NullFloat64
		statusStr       string
		progressPercent sql.NullFloat64
		providerTaskID  sql.NullString
		resultKey       sql.NullString
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&contentID,
		&analysisID,
		&sceneIndex,
		&startTime,
		&endTime,
		&statusStr,
		&progressPercent,
		&providerTaskID,
		&resultKey,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	gen := &Generation{
		ID:              id,
		ContentID:       contentID,
		AnalysisID:      analysisID.String,
		Status:          GenerationStatus(statusStr),
		ProgressPercent: progressPercent.Float64,
		ProviderTaskID:  providerTaskID.String,
		ResultKey:       resultKey.String,
		ErrorMessage:    errorMessage.String,
	}
	if sceneIndex.Valid {
		idx := int(sceneIndex.Int64)
		gen.SceneIndex = &idx
	}
	if startTime.Valid {
		v := startTime.Float64
		gen.StartTime = &v
	}
	if endTime.Valid {
		v := endTime.Float64
		gen.EndTime = &v
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		gen.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		gen.UpdatedAt = updated
	}
	gen.StartedAt = parseOptionalTime(startedRaw)
	gen.CompletedAt = parseOptionalTime(completedRaw)
	return gen, nil
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
