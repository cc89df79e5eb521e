package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const compositeColumns = "id, content_id, analysis_id, descriptors_json, status, stage, progress_percent, message, result_key, error_message, failed_scene_id, created_at, updated_at"

// CreateComposite inserts a composite record with its descriptors persisted
// in ascending scene index order.
func (s *Store) CreateComposite(ctx context.Context, composite *Composite) error {
	if composite == nil {
		return errors.New("composite is nil")
	}
	if composite.ID == "" {
		composite.ID = uuid.NewString()
	}
	if composite.Status == "" {
		composite.Status = CompositePending
	}
	now := time.Now().UTC()
	composite.CreatedAt = now
	composite.UpdatedAt = now

	sort.Slice(composite.Descriptors, func(i, j int) bool {
		return composite.Descriptors[i].SceneIndex < composite.Descriptors[j].SceneIndex
	})
	descriptorsJSON, err := json.Marshal(composite.Descriptors)
	if err != nil {
		return fmt.Errorf("encode descriptors: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO composite_generations (
            id, content_id, analysis_id, descriptors_json, status, stage,
            progress_percent, message, result_key, error_message,
            failed_scene_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		composite.ID,
		composite.ContentID,
		composite.AnalysisID,
		string(descriptorsJSON),
		composite.Status,
		nullableString(composite.Stage),
		composite.ProgressPercent,
		nullableString(composite.Message),
		nullableString(composite.ResultKey),
		nullableString(composite.ErrorMessage),
		nullableString(composite.FailedSceneID),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert composite: %w", err)
	}
	return nil
}

// UpdateComposite persists changes to an existing composite.
func (s *Store) UpdateComposite(ctx context.Context, composite *Composite) error {
	if composite == nil {
		return errors.New("composite is nil")
	}
	composite.UpdatedAt = time.Now().UTC()

	descriptorsJSON, err := json.Marshal(composite.Descriptors)
	if err != nil {
		return fmt.Errorf("encode descriptors: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`UPDATE composite_generations
         SET descriptors_json = ?, status = ?, stage = ?, progress_percent = ?,
             message = ?, result_key = ?, error_message = ?, failed_scene_id = ?, updated_at = ?
         WHERE id = ?`,
		string(descriptorsJSON),
		composite.Status,
		nullableString(composite.Stage),
		composite.ProgressPercent,
		nullableString(composite.Message),
		nullableString(composite.ResultKey),
		nullableString(composite.ErrorMessage),
		nullableString(composite.FailedSceneID),
		composite.UpdatedAt.Format(time.RFC3339Nano),
		composite.ID,
	)
	if err != nil {
		return fmt.Errorf("update composite: %w", err)
	}
	return nil
}

// GetComposite fetches a composite by identifier.
func (s *Store) GetComposite(ctx context.Context, id string) (*Composite, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+compositeColumns+` FROM composite_generations WHERE id = ?`, id)
	composite, err := scanComposite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get composite: %w", err)
	}
	return composite, nil
}

// CompositesForAnalysis returns composites for an analysis, newest first.
func (s *Store) CompositesForAnalysis(ctx context.Context, analysisID string) ([]*Composite, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+compositeColumns+` FROM composite_generations WHERE analysis_id = ? ORDER BY created_at DESC`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("composites for analysis: %w", err)
	}
	defer rows.Close()

	var composites []*Composite
	for rows.Next() {
		composite, err := scanComposite(rows)
		if err != nil {
			return nil, err
		}
		composites = append(composites, composite)
	}
	return composites, rows.Err()
}

func scanComposite(scanner interface{ Scan(dest ...any) error }) (*Composite, error) {
	var (
		id              string
		contentID       string
		analysisID      string
		descriptorsJSON string
		statusStr       string
		stage           sql.NullString
		progressPercent sql.NullFloat64
		message         sql.NullString
		resultKey       sql.NullString
		errorMessage    sql.NullString
		failedSceneID   sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&contentID,
		&analysisID,
		&descriptorsJSON,
		&statusStr,
		&stage,
		&progressPercent,
		&message,
		&resultKey,
		&errorMessage,
		&failedSceneID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	composite := &Composite{
		ID:              id,
		ContentID:       contentID,
		AnalysisID:      analysisID,
		Status:          CompositeStatus(statusStr),
		Stage:           stage.String,
		ProgressPercent: progressPercent.Float64,
		Message:         message.String,
		ResultKey:       resultKey.String,
		ErrorMessage:    errorMessage.String,
		FailedSceneID:   failedSceneID.String,
	}
	if err := json.Unmarshal([]byte(descriptorsJSON), &composite.Descriptors); err != nil {
		return nil, fmt.Errorf("decode descriptors for composite %s: %w", id, err)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		composite.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		composite.UpdatedAt = updated
	}
	return composite, nil
}
