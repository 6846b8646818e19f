package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"trusight/apperr"
	"trusight/models"
)

// ChatStore persists chat histories and their messages. Every call is a
// direct round trip to Postgres.
type ChatStore struct {
	db *sqlx.DB
}

func NewChatStore(db *sqlx.DB) *ChatStore {
	return &ChatStore{db: db}
}

type historyRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type messageRow struct {
	ID           string         `db:"id"`
	ChatID       string         `db:"chat_id"`
	Content      string         `db:"content"`
	Sender       string         `db:"sender"`
	Type         sql.NullString `db:"type"`
	AnalysisData []byte         `db:"analysis_data"`
	Timestamp    time.Time      `db:"timestamp"`
}

func (r messageRow) toModel() (models.ChatMessage, error) {
	m := models.ChatMessage{
		ID:        r.ID,
		ChatID:    r.ChatID,
		Content:   r.Content,
		Sender:    models.Sender(r.Sender),
		Type:      models.MessageType(r.Type.String),
		Timestamp: r.Timestamp,
	}
	if len(r.AnalysisData) > 0 {
		var a models.BiasAnalysisResult
		if err := json.Unmarshal(r.AnalysisData, &a); err != nil {
			return m, fmt.Errorf("decoding analysis_data of message %s: %w", r.ID, err)
		}
		m.AnalysisData = &a
	}
	return m, nil
}

// ownerColumn returns the column holding owner's id. The value is one of
// two constants and never user input.
func ownerColumn(owner models.OwnerKey) string {
	if owner.Kind == models.OwnerUser {
		return "user_id"
	}
	return "session_id"
}

func (s *ChatStore) CreateChatHistory(ctx context.Context, owner models.OwnerKey, title string) (*models.ChatHistory, error) {
	h := &models.ChatHistory{
		ID:       uuid.NewString(),
		Title:    title,
		Messages: []models.ChatMessage{},
	}
	userID, sessionID := owner.Columns()

	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO chat_histories (id, title, user_id, session_id) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		h.ID, h.Title, userID, sessionID,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "create chat history", err)
	}
	return h, nil
}

// GetChatHistories returns owner's histories, most recently updated
// first, each with messages in ascending timestamp order.
func (s *ChatStore) GetChatHistories(ctx context.Context, owner models.OwnerKey) ([]models.ChatHistory, error) {
	col := ownerColumn(owner)

	var hrows []historyRow
	err := s.db.SelectContext(ctx, &hrows,
		`SELECT id, title, created_at, updated_at FROM chat_histories WHERE `+col+` = $1 ORDER BY updated_at DESC`,
		owner.ID)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageRead, "list chat histories", err)
	}

	histories := make([]models.ChatHistory, 0, len(hrows))
	if len(hrows) == 0 {
		return histories, nil
	}

	var mrows []messageRow
	err = s.db.SelectContext(ctx, &mrows,
		`SELECT m.id, m.chat_id, m.content, m.sender, m.type, m.analysis_data, m.timestamp
		FROM chat_messages m JOIN chat_histories h ON h.id = m.chat_id
		WHERE h.`+col+` = $1 ORDER BY m.timestamp ASC`,
		owner.ID)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageRead, "list chat messages", err)
	}

	byChat := make(map[string][]models.ChatMessage, len(hrows))
	for _, r := range mrows {
		m, err := r.toModel()
		if err != nil {
			return nil, apperr.Storage(apperr.CodeStorageRead, "list chat messages", err)
		}
		byChat[r.ChatID] = append(byChat[r.ChatID], m)
	}

	for _, r := range hrows {
		msgs := byChat[r.ID]
		if msgs == nil {
			msgs = []models.ChatMessage{}
		}
		histories = append(histories, models.ChatHistory{
			ID:        r.ID,
			Title:     r.Title,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
			Messages:  msgs,
		})
	}
	return histories, nil
}

// AddMessage inserts a message and touches the parent history. A chat
// that does not exist or belongs to another owner rejects the write.
func (s *ChatStore) AddMessage(ctx context.Context, owner models.OwnerKey, in models.NewMessage) (*models.ChatMessage, error) {
	if !in.Sender.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidFormat, fmt.Sprintf("invalid sender %q", in.Sender))
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidFormat, fmt.Sprintf("invalid message type %q", in.Type))
	}
	if _, err := uuid.Parse(in.ChatID); err != nil {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message", fmt.Errorf("invalid chat id %q", in.ChatID))
	}

	var analysis []byte
	if in.AnalysisData != nil {
		var err error
		if analysis, err = json.Marshal(in.AnalysisData); err != nil {
			return nil, fmt.Errorf("encoding analysis data: %w", err)
		}
	}
	var msgType sql.NullString
	if in.Type != "" {
		msgType = sql.NullString{String: string(in.Type), Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE chat_histories SET updated_at = NOW() WHERE id = $1 AND `+ownerColumn(owner)+` = $2`,
		in.ChatID, owner.ID)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message",
			fmt.Errorf("chat %s is not owned by %s", in.ChatID, owner))
	}

	m := &models.ChatMessage{
		ID:           uuid.NewString(),
		ChatID:       in.ChatID,
		Content:      in.Content,
		Sender:       in.Sender,
		Type:         in.Type,
		AnalysisData: in.AnalysisData,
	}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO chat_messages (id, chat_id, content, sender, type, analysis_data) VALUES ($1, $2, $3, $4, $5, $6) RETURNING timestamp`,
		m.ID, m.ChatID, m.Content, string(m.Sender), msgType, analysis,
	).Scan(&m.Timestamp)
	if err != nil {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message", err)
	}
	return m, nil
}

// DeleteChatHistory hard-deletes a history; messages go with it by cascade.
func (s *ChatStore) DeleteChatHistory(ctx context.Context, owner models.OwnerKey, chatID string) error {
	if _, err := uuid.Parse(chatID); err != nil {
		return apperr.NotFound("chat not found")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_histories WHERE id = $1 AND `+ownerColumn(owner)+` = $2`,
		chatID, owner.ID)
	return affectedOne(res, err, "delete chat history")
}

func (s *ChatStore) UpdateChatTitle(ctx context.Context, owner models.OwnerKey, chatID, title string) error {
	if _, err := uuid.Parse(chatID); err != nil {
		return apperr.NotFound("chat not found")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_histories SET title = $1, updated_at = NOW() WHERE id = $2 AND `+ownerColumn(owner)+` = $3`,
		title, chatID, owner.ID)
	return affectedOne(res, err, "rename chat history")
}

func affectedOne(res sql.Result, err error, op string) error {
	if err != nil {
		return apperr.Storage(apperr.CodeStorageWrite, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage(apperr.CodeStorageWrite, op, err)
	}
	if n == 0 {
		return apperr.NotFound("chat not found")
	}
	return nil
}

// IsNoRows reports whether err is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
