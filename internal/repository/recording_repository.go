package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dwnmf/Screen-recoder/internal/models"
)

var ErrRecordingNotFound = errors.New("recording not found")

type RecordingRepository struct {
	db *sql.DB
}

func NewRecordingRepository(db *sql.DB) *RecordingRepository {
	return &RecordingRepository{db: db}
}

// CreateRecording inserts a new history entry
func (r *RecordingRepository) CreateRecording(ctx context.Context, rec *models.Recording) error {
	query := `
		INSERT INTO recordings (id, mode, stream_id, status, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		string(rec.Mode),
		rec.StreamID,
		rec.Status,
		rec.StartedAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	return nil
}

// CompleteRecording stores the outcome of a finished session
func (r *RecordingRepository) CompleteRecording(ctx context.Context, rec *models.Recording) error {
	query := `
		UPDATE recordings
		SET status = $1, mime_type = $2, audio_enabled = $3, chunked = $4, chunks = $5,
			files = $6, bytes = $7, duration_seconds = $8, error = $9, completed_at = $10, updated_at = $11
		WHERE id = $12
	`
	res, err := r.db.ExecContext(
		ctx,
		query,
		rec.Status,
		rec.MimeType,
		rec.AudioEnabled,
		rec.Chunked,
		rec.Chunks,
		pq.Array(rec.Files),
		rec.Bytes,
		rec.DurationSeconds,
		rec.Error,
		rec.CompletedAt,
		time.Now(),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete recording: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

const recordingColumns = `id, mode, stream_id, status, mime_type, audio_enabled, chunked, chunks,
		files, bytes, duration_seconds, error, started_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecording(row rowScanner) (*models.Recording, error) {
	var (
		rec       models.Recording
		mode      string
		duration  sql.NullFloat64
		completed sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&mode,
		&rec.StreamID,
		&rec.Status,
		&rec.MimeType,
		&rec.AudioEnabled,
		&rec.Chunked,
		&rec.Chunks,
		pq.Array(&rec.Files),
		&rec.Bytes,
		&duration,
		&rec.Error,
		&rec.StartedAt,
		&completed,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Mode = models.CaptureMode(mode)
	if duration.Valid {
		rec.DurationSeconds = &duration.Float64
	}
	if completed.Valid {
		rec.CompletedAt = &completed.Time
	}
	return &rec, nil
}

// GetRecordingByID retrieves a history entry by ID
func (r *RecordingRepository) GetRecordingByID(ctx context.Context, id string) (*models.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	rec, err := scanRecording(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordingNotFound
		}
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return rec, nil
}

// ListRecordings returns the most recent history entries first
func (r *RecordingRepository) ListRecordings(ctx context.Context, limit int) ([]*models.Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + recordingColumns + ` FROM recordings ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recordings []*models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recordings = append(recordings, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return recordings, nil
}

// DeleteRecording deletes a history entry by ID
func (r *RecordingRepository) DeleteRecording(ctx context.Context, id string) error {
	query := `DELETE FROM recordings WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordingNotFound
	}
	return nil
}
