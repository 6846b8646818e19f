package models

import "time"

// PublisherStats aggregates analyses per publisher ("owner").
type PublisherStats struct {
	Owner          string    `json:"owner" db:"owner"`
	TotalAnalyses  int       `json:"totalAnalyses" db:"total_analyses"`
	LeftCount      int       `json:"leftCount" db:"left_count"`
	CenterCount    int       `json:"centerCount" db:"center_count"`
	RightCount     int       `json:"rightCount" db:"right_count"`
	NeutralCount   int       `json:"neutralCount" db:"neutral_count"`
	AvgConfidence  float64   `json:"avgConfidence" db:"avg_confidence"`
	LastAnalyzedAt time.Time `json:"lastAnalyzedAt" db:"last_analyzed_at"`
}
