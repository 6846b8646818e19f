package models

import "time"

type ShareRequest struct {
	ChatID       string              `json:"chatId"`
	MessageID    string              `json:"messageId"`
	AnalysisData *BiasAnalysisResult `json:"analysisData"`
}

type ShareRecord struct {
	ID           string             `json:"id"`
	ChatID       string             `json:"chatId"`
	MessageID    string             `json:"messageId"`
	AnalysisData BiasAnalysisResult `json:"analysisData"`
	CreatedAt    time.Time          `json:"createdAt"`
	ExpiresAt    time.Time          `json:"expiresAt"`
}
