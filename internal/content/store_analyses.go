package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const analysisColumns = "id, content_id, method, scenes_json, frame_count, duration_sec, created_at"

// SaveAnalysis inserts a new analysis for a content item.
func (s *Store) SaveAnalysis(ctx context.Context, analysis *Analysis) error {
	if analysis == nil {
		return errors.New("analysis is nil")
	}
	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}

	scenesJSON, err := json.Marshal(analysis.Scenes)
	if err != nil {
		return fmt.Errorf("encode scenes: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO analyses (id, content_id, method, scenes_json, frame_count, duration_sec, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		analysis.ID,
		analysis.ContentID,
		analysis.Method,
		string(scenesJSON),
		analysis.FrameCount,
		analysis.DurationSec,
		analysis.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// GetAnalysis fetches an analysis by identifier.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return analysis, nil
}

// LatestAnalysis returns the most recent analysis for a content item, or nil.
func (s *Store) LatestAnalysis(ctx context.Context, contentID string) (*Analysis, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE content_id = ? ORDER BY created_at DESC LIMIT 1`,
		contentID,
	)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest analysis: %w", err)
	}
	return analysis, nil
}

func scanAnalysis(scanner interface{ Scan(dest ...any) error }) (*Analysis, error) {
	var (
		id          string
		contentID   string
		method      string
		scenesJSON  string
		frameCount  int
		durationSec sql.NullFloat64
		createdRaw  sql.NullString
	)

	if err := scanner.Scan(&id, &contentID, &method, &scenesJSON, &frameCount, &durationSec, &createdRaw); err != nil {
		return nil, err
	}

	analysis := &Analysis{
		ID:          id,
		ContentID:   contentID,
		Method:      AnalysisMethod(method),
		FrameCount:  frameCount,
		DurationSec: durationSec.Float64,
	}
	if err := json.Unmarshal([]byte(scenesJSON), &analysis.Scenes); err != nil {
		return nil, fmt.Errorf("decode scenes for analysis %s: %w", id, err)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		analysis.CreatedAt = created
	}
	return analysis, nil
}
