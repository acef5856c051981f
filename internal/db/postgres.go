package db

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/config"
)

func ConnectPostgres(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection keeps the session-level search_path in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := Prepare(db, cfg.PostgresSchema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Msgf("PostgreSQL connection established (database: %s, schema: %s)", cfg.PostgresDB, cfg.PostgresSchema)
	return db, nil
}

// Prepare creates the schema, selects it and runs migrations.
func Prepare(db *sql.DB, schema string) error {
	createSchemaSQL := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schema))
	if _, err := db.Exec(createSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	setSearchPathSQL := fmt.Sprintf("SET search_path TO %s, public", pq.QuoteIdentifier(schema))
	if _, err := db.Exec(setSearchPathSQL); err != nil {
		return fmt.Errorf("failed to set search_path: %w", err)
	}

	if err := runMigrations(db, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

var migrations = []string{
	// Create recordings table
	`CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		stream_id TEXT NOT NULL,
		status TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		audio_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		chunked BOOLEAN NOT NULL DEFAULT FALSE,
		chunks INTEGER NOT NULL DEFAULT 0,
		files TEXT[] NOT NULL DEFAULT '{}',
		bytes BIGINT NOT NULL DEFAULT 0,
		duration_seconds DOUBLE PRECISION,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		completed_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,

	// Create indexes for recordings
	`CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings(status)`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_started_at ON recordings(started_at DESC)`,
}

func runMigrations(db *sql.DB, schema string) error {
	log.Info().Msg("Running migrations...")

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Msgf("Migrations completed successfully in schema: %s", schema)
	return nil
}
