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

const templateColumns = "id, content_id, analysis_id, spec_json, created_at"

// SaveTemplate inserts a new template for a content item.
func (s *Store) SaveTemplate(ctx context.Context, template *Template) error {
	if template == nil {
		return errors.New("template is nil")
	}
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	specJSON, err := json.Marshal(template.Spec)
	if err != nil {
		return fmt.Errorf("encode template spec: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO templates (id, content_id, analysis_id, spec_json, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		template.ID,
		template.ContentID,
		template.AnalysisID,
		string(specJSON),
		template.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate fetches a template by identifier.
func (s *Store) GetTemplate(ctx context.Context, id string) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	template, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return template, nil
}

// TemplateForContent returns the template derived from a content item, or nil.
func (s *Store) TemplateForContent(ctx context.Context, contentID string) (*Template, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+templateColumns+` FROM templates WHERE content_id = ? ORDER BY created_at DESC LIMIT 1`,
		contentID,
	)
	template, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("template for content: %w", err)
	}
	return template, nil
}

// ReplaceTemplate deletes the stale template and its derived children, then
// inserts the replacement, inside one transaction. A crash mid-way leaves
// either the old artifact intact or the new one fully created, never neither.
func (s *Store) ReplaceTemplate(ctx context.Context, stale *Template, replacement *Template) error {
	if replacement == nil {
		return errors.New("replacement template is nil")
	}
	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	if replacement.CreatedAt.IsZero() {
		replacement.CreatedAt = time.Now().UTC()
	}

	specJSON, err := json.Marshal(replacement.Spec)
	if err != nil {
		return fmt.Errorf("encode template spec: %w", err)
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin replace tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if stale != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM generations WHERE analysis_id = ?`, stale.AnalysisID); err != nil {
				return fmt.Errorf("delete derived generations: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM composite_generations WHERE analysis_id = ?`, stale.AnalysisID); err != nil {
				return fmt.Errorf("delete derived composites: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, stale.ID); err != nil {
				return fmt.Errorf("delete stale template: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO templates (id, content_id, analysis_id, spec_json, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			replacement.ID,
			replacement.ContentID,
			replacement.AnalysisID,
			string(specJSON),
			replacement.CreatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert replacement template: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit replace: %w", err)
		}
		return nil
	})
}

func scanTemplate(scanner interface{ Scan(dest ...any) error }) (*Template, error) {
	var (
		id         string
		contentID  string
		analysisID string
		specJSON   string
		createdRaw sql.NullString
	)

	if err := scanner.Scan(&id, &contentID, &analysisID, &specJSON, &createdRaw); err != nil {
		return nil, err
	}

	template := &Template{
		ID:         id,
		ContentID:  contentID,
		AnalysisID: analysisID,
	}
	if err := json.Unmarshal([]byte(specJSON), &template.Spec); err != nil {
		return nil, fmt.Errorf("decode spec for template %s: %w", id, err)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		template.CreatedAt = created
	}
	return template, nil
}
