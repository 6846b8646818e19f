package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"trusight/apperr"
	"trusight/models"
)

type ShareStore struct {
	db *sqlx.DB
}

func NewShareStore(db *sqlx.DB) *ShareStore {
	return &ShareStore{db: db}
}

func (s *ShareStore) Create(ctx context.Context, rec *models.ShareRecord) error {
	data, err := json.Marshal(rec.AnalysisData)
	if err != nil {
		return fmt.Errorf("encoding shared analysis: %w", err)
	}
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO shared_analyses (id, chat_id, message_id, analysis_data, expires_at) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		rec.ID, rec.ChatID, rec.MessageID, data, rec.ExpiresAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return apperr.Storage(apperr.CodeStorageWrite, "create share", err)
	}
	return nil
}

// Get returns an unexpired share or a NotFound error.
func (s *ShareStore) Get(ctx context.Context, id string) (*models.ShareRecord, error) {
	var row struct {
		ID           string    `db:"id"`
		ChatID       string    `db:"chat_id"`
		MessageID    string    `db:"message_id"`
		AnalysisData []byte    `db:"analysis_data"`
		CreatedAt    time.Time `db:"created_at"`
		ExpiresAt    time.Time `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT id, chat_id, message_id, analysis_data, created_at, expires_at FROM shared_analyses WHERE id = $1 AND expires_at > NOW()`,
		id)
	if err != nil {
		if IsNoRows(err) {
			return nil, apperr.NotFound("shared analysis not found or expired")
		}
		return nil, apperr.Storage(apperr.CodeStorageRead, "get share", err)
	}

	rec := &models.ShareRecord{
		ID:        row.ID,
		ChatID:    row.ChatID,
		MessageID: row.MessageID,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}
	if err := json.Unmarshal(row.AnalysisData, &rec.AnalysisData); err != nil {
		return nil, apperr.Storage(apperr.CodeStorageRead, "decode share", err)
	}
	return rec, nil
}

// PurgeExpired deletes expired shares and reports how many went.
func (s *ShareStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shared_analyses WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, apperr.Storage(apperr.CodeStorageWrite, "purge shares", err)
	}
	return res.RowsAffected()
}
