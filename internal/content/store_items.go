package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/services"
)

const itemColumns = "id, shortcode, status, caption, author, duration_sec, media_key, thumbnail_url, progress_stage, progress_percent, progress_message, error_message, created_at, updated_at"

// CreateItem inserts a freshly scraped content item.
func (s *Store) CreateItem(ctx context.Context, shortcode, caption, author string, durationSec float64) (*Item, error) {
	shortcode = strings.TrimSpace(shortcode)
	if shortcode == "" {
		return nil, services.Wrap(services.ErrValidation, "content", "create", "shortcode is required", nil)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO content_items (
            id, shortcode, status, caption, author, duration_sec,
            progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id,
		shortcode,
		StatusScraped,
		nullableString(caption),
		nullableString(author),
		durationSec,
		timestamp,
		timestamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, services.Wrap(services.ErrValidation, "content", "create",
				fmt.Sprintf("shortcode %q already ingested", shortcode), nil)
		}
		return nil, fmt.Errorf("insert content item: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem fetches a content item by identifier.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return item, nil
}

// GetItemByShortcode fetches a content item by its source shortcode.
func (s *Store) GetItemByShortcode(ctx context.Context, shortcode string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE shortcode = ?`, shortcode)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content item by shortcode: %w", err)
	}
	return item, nil
}

// UpdateItem persists changes to an existing content item.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE content_items
         SET status = ?, caption = ?, author = ?, duration_sec = ?, media_key = ?,
             thumbnail_url = ?, progress_stage = ?, progress_percent = ?,
             progress_message = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		item.Status,
		nullableString(item.Caption),
		nullableString(item.Author),
		item.DurationSec,
		nullableString(item.MediaKey),
		nullableString(item.ThumbnailURL),
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update content item: %w", err)
	}
	return nil
}

// ListItems returns content items filtered by status set (or all items when
// no status is provided), ordered by creation time.
func (s *Store) ListItems(ctx context.Context, statuses ...Status) ([]*Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM content_items`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := make([]string, len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + strings.Join(placeholders, ",") + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              string
		shortcode       string
		statusStr       string
		caption         sql.NullString
		author          sql.NullString
		durationSec     sql.NullFloat64
		mediaKey        sql.NullString
		thumbnailURL    sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&shortcode,
		&statusStr,
		&caption,
		&author,
		&durationSec,
		&mediaKey,
		&thumbnailURL,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		Shortcode:       shortcode,
		Status:          Status(statusStr),
		Caption:         caption.String,
		Author:          author.String,
		DurationSec:     durationSec.Float64,
		MediaKey:        mediaKey.String,
		ThumbnailURL:    thumbnailURL.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ErrorMessage:    errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
