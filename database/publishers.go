package database

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"trusight/apperr"
	"trusight/models"
)

// PublisherStore keeps per-publisher bias tallies.
type PublisherStore struct {
	db *sqlx.DB
}

func NewPublisherStore(db *sqlx.DB) *PublisherStore {
	return &PublisherStore{db: db}
}

func biasCounters(b models.Bias) (left, center, right, neutral int) {
	switch b {
	case models.BiasLeft:
		return 1, 0, 0, 0
	case models.BiasRight:
		return 0, 0, 1, 0
	case models.BiasNeutral:
		return 0, 0, 0, 1
	default:
		return 0, 1, 0, 0
	}
}

// Record adds one analysis to the owner's tally.
func (s *PublisherStore) Record(ctx context.Context, owner string, bias models.Bias, confidence float64) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = models.UnknownPublisher
	}
	l, c, r, n := biasCounters(bias)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publisher_stats (owner, total_analyses, left_count, center_count, right_count, neutral_count, sum_confidence, avg_confidence, last_analyzed_at)
		VALUES ($1, 1, $2, $3, $4, $5, $6, $6, NOW())
		ON CONFLICT (owner) DO UPDATE SET
			total_analyses   = publisher_stats.total_analyses + 1,
			left_count       = publisher_stats.left_count + $2,
			center_count     = publisher_stats.center_count + $3,
			right_count      = publisher_stats.right_count + $4,
			neutral_count    = publisher_stats.neutral_count + $5,
			sum_confidence   = publisher_stats.sum_confidence + $6,
			avg_confidence   = (publisher_stats.sum_confidence + $6) / (publisher_stats.total_analyses + 1),
			last_analyzed_at = NOW()
	`, owner, l, c, r, n, confidence)
	if err != nil {
		return apperr.Storage(apperr.CodeStorageWrite, "record publisher stats", err)
	}
	return nil
}

func (s *PublisherStore) Top(ctx context.Context, limit int) ([]models.PublisherStats, error) {
	if limit <= 0 {
		limit = 20
	}
	list := []models.PublisherStats{}
	err := s.db.SelectContext(ctx, &list, `
		SELECT owner, total_analyses, left_count, center_count, right_count, neutral_count, avg_confidence, last_analyzed_at
		FROM publisher_stats
		ORDER BY total_analyses DESC, owner ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageRead, "list publisher stats", err)
	}
	return list, nil
}
