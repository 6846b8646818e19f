package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"trusight/logger"
)

const defaultQueryTimeout = 10 * time.Second

var schema = []struct {
	name string
	ddl  string
}{
	{"chat_histories", `
		CREATE TABLE IF NOT EXISTS chat_histories (
			id         UUID PRIMARY KEY,
			title      TEXT NOT NULL,
			user_id    TEXT,
			session_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chat_histories_single_owner CHECK ((user_id IS NULL) <> (session_id IS NULL))
		)`},
	{"chat_histories_user_idx", `CREATE INDEX IF NOT EXISTS chat_histories_user_idx ON chat_histories (user_id) WHERE user_id IS NOT NULL`},
	{"chat_histories_session_idx", `CREATE INDEX IF NOT EXISTS chat_histories_session_idx ON chat_histories (session_id) WHERE session_id IS NOT NULL`},
	{"chat_messages", `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id            UUID PRIMARY KEY,
			chat_id       UUID NOT NULL REFERENCES chat_histories (id) ON DELETE CASCADE,
			content       TEXT NOT NULL,
			sender        TEXT NOT NULL CHECK (sender IN ('user', 'system')),
			type          TEXT,
			analysis_data JSONB,
			timestamp     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"chat_messages_chat_idx", `CREATE INDEX IF NOT EXISTS chat_messages_chat_idx ON chat_messages (chat_id, timestamp)`},
	{"shared_analyses", `
		CREATE TABLE IF NOT EXISTS shared_analyses (
			id            TEXT PRIMARY KEY,
			chat_id       TEXT NOT NULL,
			message_id    TEXT NOT NULL,
			analysis_data JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at    TIMESTAMPTZ NOT NULL
		)`},
	{"contact_submissions", `
		CREATE TABLE IF NOT EXISTS contact_submissions (
			id         SERIAL PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name  TEXT NOT NULL,
			email      TEXT NOT NULL,
			subject    TEXT NOT NULL,
			message    TEXT NOT NULL,
			type       TEXT NOT NULL DEFAULT 'contact',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"publisher_stats", `
		CREATE TABLE IF NOT EXISTS publisher_stats (
			owner            TEXT PRIMARY KEY,
			total_analyses   INTEGER NOT NULL DEFAULT 0,
			left_count       INTEGER NOT NULL DEFAULT 0,
			center_count     INTEGER NOT NULL DEFAULT 0,
			right_count      INTEGER NOT NULL DEFAULT 0,
			neutral_count    INTEGER NOT NULL DEFAULT 0,
			sum_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_analyzed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
}

// InitDB connects to Postgres and creates the schema. An empty url
// returns a nil DB: the service then runs without persistence.
func InitDB(ctx context.Context, url string) (*sqlx.DB, error) {
	if url == "" {
		logger.Log.Warn("[DB] DB_URL is not set, running without persistence")
		return nil, nil
	}

	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	logger.Log.Info("[DB] connected to PostgreSQL")

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, s := range schema {
		if _, err := db.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}
	return nil
}
