package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"trusight/apperr"
	"trusight/cache"
	"trusight/logger"
	"trusight/models"
)

// ShareRepository persists shared analyses.
type ShareRepository interface {
	Create(ctx context.Context, rec *models.ShareRecord) error
	Get(ctx context.Context, id string) (*models.ShareRecord, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type ShareService struct {
	store   ShareRepository
	cache   *cache.Client
	baseURL string
	ttl     time.Duration
	now     func() time.Time
	random  io.Reader
}

func NewShareService(store ShareRepository, c *cache.Client, baseURL string, ttl time.Duration) *ShareService {
	return &ShareService{
		store:   store,
		cache:   c,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
		random:  rand.Reader,
	}
}

func (s *ShareService) newID() (string, error) {
	b := make([]byte, 6)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shareCacheKey(id string) string { return "share:" + id }

// Create stores req and returns the new share id and its public URL.
func (s *ShareService) Create(ctx context.Context, req models.ShareRequest) (*models.ShareRecord, string, error) {
	switch {
	case strings.TrimSpace(req.ChatID) == "":
		return nil, "", apperr.Validation(apperr.CodeMissingField, "chatId is required")
	case strings.TrimSpace(req.MessageID) == "":
		return nil, "", apperr.Validation(apperr.CodeMissingField, "messageId is required")
	case req.AnalysisData == nil:
		return nil, "", apperr.Validation(apperr.CodeMissingField, "analysisData is required")
	}

	id, err := s.newID()
	if err != nil {
		logger.Log.Errorf("[SHARE] generate id: %v", err)
		return nil, "", apperr.Storage(apperr.CodeStorageWrite, "generate share id", err)
	}
	rec := &models.ShareRecord{
		ID:           id,
		ChatID:       req.ChatID,
		MessageID:    req.MessageID,
		AnalysisData: Normalize(*req.AnalysisData),
		ExpiresAt:    s.now().Add(s.ttl),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		logger.Log.Errorf("[SHARE] create for chat %s: %v", req.ChatID, err)
		return nil, "", err
	}
	logger.Log.Infof("[SHARE] %s created for chat %s", rec.ID, rec.ChatID)
	return rec, s.URL(rec.ID), nil
}

func (s *ShareService) URL(id string) string {
	return s.baseURL + "/s/" + id
}

// Get returns an unexpired share, consulting the cache first.
func (s *ShareService) Get(ctx context.Context, id string) (*models.ShareRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound("shared analysis not found or expired")
	}

	key := shareCacheKey(id)
	var rec models.ShareRecord
	if err := s.cache.GetJSON(ctx, key, &rec); err == nil {
		if rec.ExpiresAt.After(s.now()) {
			return &rec, nil
		}
		s.cache.Del(ctx, key)
		return nil, apperr.NotFound("shared analysis not found or expired")
	}

	found, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ttl := found.ExpiresAt.Sub(s.now())
	if ttl > time.Hour {
		ttl = time.Hour
	}
	if ttl > 0 {
		if err := s.cache.SetJSON(ctx, key, found, ttl); err != nil {
			logger.Log.Warnf("[SHARE] cache write %s: %v", id, err)
		}
	}
	return found, nil
}

// PurgeExpired removes expired shares.
func (s *ShareService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Log.Infof("[SHARE] purged %d expired shares", n)
	}
	return n, nil
}
