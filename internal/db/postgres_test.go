package db

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareRunsMigrationsInSchema(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "screen_recorder"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`SET search_path TO "screen_recorder", public`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for range migrations {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Prepare(conn, "screen_recorder"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepareReportsFailedMigration(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE SCHEMA").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET search_path").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = Prepare(conn, "screen_recorder")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1 failed")
}
