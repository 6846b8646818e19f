package database

import (
	"context"

	"github.com/jmoiron/sqlx"

	"trusight/apperr"
	"trusight/models"
)

type ContactStore struct {
	db *sqlx.DB
}

func NewContactStore(db *sqlx.DB) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) Insert(ctx context.Context, c *models.ContactSubmission) error {
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO contact_submissions (first_name, last_name, email, subject, message, type)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		c.FirstName, c.LastName, c.Email, c.Subject, c.Message, string(c.Type),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return apperr.Storage(apperr.CodeStorageWrite, "save contact submission", err)
	}
	return nil
}
