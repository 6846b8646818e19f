package database

import (
	"context"

	"github.com/jmoiron/sqlx"

	"trusight/apperr"
)

// AdminStats summarises stored data for the admin dashboard.
type AdminStats struct {
	Chats       int            `json:"chats" db:"chats"`
	Messages    int            `json:"messages" db:"messages"`
	Analyses    int            `json:"analyses" db:"analyses"`
	Shares      int            `json:"shares" db:"shares"`
	Contacts    int            `json:"contacts" db:"contacts"`
	BiasSummary map[string]int `json:"biasSummary"`
}

type StatsStore struct {
	db *sqlx.DB
}

func NewStatsStore(db *sqlx.DB) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) Summary(ctx context.Context) (*AdminStats, error) {
	st := &AdminStats{BiasSummary: map[string]int{}}
	err := s.db.GetContext(ctx, st, `
		SELECT
			(SELECT COUNT(*) FROM chat_histories) AS chats,
			(SELECT COUNT(*) FROM chat_messages) AS messages,
			(SELECT COUNT(*) FROM chat_messages WHERE type = 'analysis') AS analyses,
			(SELECT COUNT(*) FROM shared_analyses WHERE expires_at > NOW()) AS shares,
			(SELECT COUNT(*) FROM contact_submissions) AS contacts`)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageRead, "admin stats", err)
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT analysis_data->>'bias' AS bias, COUNT(*) AS n
		FROM chat_messages WHERE type = 'analysis' AND analysis_data IS NOT NULL
		GROUP BY 1`)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageRead, "admin bias summary", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bias string
		var n int
		if err := rows.Scan(&bias, &n); err != nil {
			return nil, apperr.Storage(apperr.CodeStorageRead, "admin bias summary", err)
		}
		st.BiasSummary[bias] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(apperr.CodeStorageRead, "admin bias summary", err)
	}
	return st, nil
}
