package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwnmf/Screen-recoder/internal/models"
)

var columns = []string{
	"id", "mode", "stream_id", "status", "mime_type", "audio_enabled", "chunked", "chunks",
	"files", "bytes", "duration_seconds", "error", "started_at", "completed_at", "created_at", "updated_at",
}

func newRepo(t *testing.T) (*RecordingRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRecordingRepository(db), mock
}

func TestCreateRecording(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recordings")).
		WithArgs("rec-1", "desktop", "stream-9", models.StatusRecording, now, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRecording(context.Background(), &models.Recording{
		ID:        "rec-1",
		Mode:      models.ModeDesktop,
		StreamID:  "stream-9",
		Status:    models.StatusRecording,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRecording(t *testing.T) {
	repo, mock := newRepo(t)
	done := time.Now()
	duration := 12.5

	mock.ExpectExec(regexp.QuoteMeta("UPDATE recordings")).
		WithArgs(models.StatusCompleted, "video/webm;codecs=vp9", true, true, 2,
			sqlmock.AnyArg(), int64(300), duration, "", done, sqlmock.AnyArg(), "rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.Recording{
		ID:              "rec-1",
		Status:          models.StatusCompleted,
		MimeType:        "video/webm;codecs=vp9",
		AudioEnabled:    true,
		Chunked:         true,
		Chunks:          2,
		Files:           []string{"a_part001.webm", "a_part002.webm"},
		Bytes:           300,
		DurationSeconds: &duration,
		CompletedAt:     &done,
	}
	require.NoError(t, repo.CompleteRecording(context.Background(), rec))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE recordings")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rec.ID = "missing"
	assert.ErrorIs(t, repo.CompleteRecording(context.Background(), rec), ErrRecordingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecordingByID(t *testing.T) {
	repo, mock := newRepo(t)
	started := time.Now().Add(-time.Minute)
	completed := time.Now()

	rows := sqlmock.NewRows(columns).
		AddRow("rec-1", "tab", "s", models.StatusCompleted, "video/webm", false, true, 2,
			"{a_part001.webm,a_part002.webm}", int64(42), 60.0, "", started, completed, started, completed)
	mock.ExpectQuery(regexp.QuoteMeta("FROM recordings WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnRows(rows)

	rec, err := repo.GetRecordingByID(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModeTab, rec.Mode)
	assert.Equal(t, []string{"a_part001.webm", "a_part002.webm"}, rec.Files)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, 60.0, *rec.DurationSeconds)
	require.NotNil(t, rec.CompletedAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM recordings WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetRecordingByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRecordingNotFound)
}

func TestListRecordingsDefaultsLimit(t *testing.T) {
	repo, mock := newRepo(t)
	started := time.Now()

	rows := sqlmock.NewRows(columns).
		AddRow("rec-2", "desktop", "s2", models.StatusRecording, "", false, false, 0,
			"{}", int64(0), nil, "", started, nil, started, started).
		AddRow("rec-1", "tab", "s1", models.StatusFailed, "video/webm", true, false, 0,
			"{}", int64(0), nil, "boom", started, started, started, started)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY started_at DESC LIMIT $1")).
		WithArgs(50).
		WillReturnRows(rows)

	list, err := repo.ListRecordings(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].DurationSeconds)
	assert.Nil(t, list[0].CompletedAt)
	assert.Equal(t, "boom", list[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRecording(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recordings")).
		WithArgs("rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recordings")).
		WithArgs("rec-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.DeleteRecording(context.Background(), "rec-1"))
	assert.ErrorIs(t, repo.DeleteRecording(context.Background(), "rec-1"), ErrRecordingNotFound)
}
