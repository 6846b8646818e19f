package models

import "time"

type Sender string

const (
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderSystem
}

type MessageType string

const (
	MessageTypeAnalysis MessageType = "analysis"
	MessageTypeMessage  MessageType = "message"
)

func (t MessageType) Valid() bool {
	return t == "" || t == MessageTypeAnalysis || t == MessageTypeMessage
}

type ChatHistory struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Messages  []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	ID           string              `json:"id"`
	ChatID       string              `json:"chatId"`
	Content      string              `json:"content"`
	Sender       Sender              `json:"sender"`
	Timestamp    time.Time           `json:"timestamp"`
	Type         MessageType         `json:"type,omitempty"`
	AnalysisData *BiasAnalysisResult `json:"analysisData,omitempty"`
}

// NewMessage is the input for appending a message to a chat.
type NewMessage struct {
	ChatID       string
	Content      string
	Sender       Sender
	Type         MessageType
	AnalysisData *BiasAnalysisResult
}
