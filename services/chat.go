package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"trusight/apperr"
	"trusight/cache"
	"trusight/logger"
	"trusight/models"
)

const (
	chatCacheTTL    = 10 * time.Minute
	defaultChatName = "New analysis"
	maxTitleRunes   = 80
)

// ChatRepository is the persistence the chat service needs.
type ChatRepository interface {
	CreateChatHistory(ctx context.Context, owner models.OwnerKey, title string) (*models.ChatHistory, error)
	GetChatHistories(ctx context.Context, owner models.OwnerKey) ([]models.ChatHistory, error)
	AddMessage(ctx context.Context, owner models.OwnerKey, in models.NewMessage) (*models.ChatMessage, error)
	DeleteChatHistory(ctx context.Context, owner models.OwnerKey, chatID string) error
	UpdateChatTitle(ctx context.Context, owner models.OwnerKey, chatID, title string) error
}

type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest, progress ...func(string)) (*models.BiasAnalysisResult, error)
	Paused() bool
}

type ArticleFetcher interface {
	FetchURL(ctx context.Context, rawURL string) (*Article, error)
}

type PublisherRecorder interface {
	Record(ctx context.Context, owner string, bias models.Bias, confidence float64) error
}

// AnalysisExchange is the pair of messages one chat analysis produces.
type AnalysisExchange struct {
	UserMessage   *models.ChatMessage `json:"userMessage"`
	SystemMessage *models.ChatMessage `json:"systemMessage"`
}

// ChatService runs the chat analysis pipeline over a ChatRepository and
// keeps an owner-keyed cache of the history list.
type ChatService struct {
	store      ChatRepository
	analyzer   Analyzer
	fetcher    ArticleFetcher
	publishers PublisherRecorder
	cache      *cache.Client

	mu       sync.Mutex
	inflight map[models.OwnerKey]struct{}
}

func NewChatService(store ChatRepository, analyzer Analyzer, fetcher ArticleFetcher, publishers PublisherRecorder, c *cache.Client) *ChatService {
	return &ChatService{
		store:      store,
		analyzer:   analyzer,
		fetcher:    fetcher,
		publishers: publishers,
		cache:      c,
		inflight:   make(map[models.OwnerKey]struct{}),
	}
}

func chatCacheKey(owner models.OwnerKey) string {
	return "chats:" + owner.String()
}

// List returns the owner's histories, newest first.
func (s *ChatService) List(ctx context.Context, owner models.OwnerKey) ([]models.ChatHistory, error) {
	key := chatCacheKey(owner)
	var cached []models.ChatHistory
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !cache.IsMiss(err) {
		logger.Log.Warnf("[CHAT] cache read %s: %v", key, err)
	}

	histories, err := s.store.GetChatHistories(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, histories, chatCacheTTL); err != nil {
		logger.Log.Warnf("[CHAT] cache write %s: %v", key, err)
	}
	return histories, nil
}

func (s *ChatService) Create(ctx context.Context, owner models.OwnerKey, title string) (*models.ChatHistory, error) {
	title = cleanTitle(title)
	if title == "" {
		title = defaultChatName
	}
	h, err := s.store.CreateChatHistory(ctx, owner, title)
	if err != nil {
		logger.Log.Errorf("[CHAT] create for %s: %v", owner, err)
		return nil, err
	}
	s.invalidate(ctx, owner)
	return h, nil
}

func (s *ChatService) Rename(ctx context.Context, owner models.OwnerKey, chatID, title string) error {
	title = cleanTitle(title)
	if title == "" {
		return apperr.Validation(apperr.CodeMissingField, "title is required")
	}
	if err := s.store.UpdateChatTitle(ctx, owner, chatID, title); err != nil {
		return err
	}
	s.invalidate(ctx, owner)
	return nil
}

func (s *ChatService) Delete(ctx context.Context, owner models.OwnerKey, chatID string) error {
	if err := s.store.DeleteChatHistory(ctx, owner, chatID); err != nil {
		return err
	}
	s.invalidate(ctx, owner)
	return nil
}

// AddMessage stores a plain message. sender defaults to user.
func (s *ChatService) AddMessage(ctx context.Context, owner models.OwnerKey, chatID, content string, sender models.Sender) (*models.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation(apperr.CodeMissingField, "content is required")
	}
	if sender == "" {
		sender = models.SenderUser
	}
	m, err := s.store.AddMessage(ctx, owner, models.NewMessage{
		ChatID:  chatID,
		Content: content,
		Sender:  sender,
		Type:    models.MessageTypeMessage,
	})
	if err != nil {
		logger.Log.Errorf("[CHAT] add message to %s for %s: %v", chatID, owner, err)
		return nil, err
	}
	s.invalidate(ctx, owner)
	return m, nil
}

// Analyze stores the user's article, classifies it, adjusts the
// confidence and stores the result as a system message. Only one
// analysis per owner may run at a time.
func (s *ChatService) Analyze(ctx context.Context, owner models.OwnerKey, chatID string, req models.AnalysisRequest, progress ...func(string)) (*AnalysisExchange, error) {
	if s.analyzer.Paused() {
		return nil, apperr.Unavailable(apperr.CodePaused, "analysis is paused by the administrator")
	}
	if !s.acquire(owner) {
		return nil, apperr.Conflict(apperr.CodeAlreadyLoading, "an analysis is already in progress")
	}
	defer s.release(owner)

	req, err := PrepareRequest(ctx, s.fetcher, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.Validation(apperr.CodeMissingField, "content is required")
	}

	// The list changes as soon as the user message lands, even if a later
	// step fails.
	defer s.invalidate(ctx, owner)

	userMsg, err := s.store.AddMessage(ctx, owner, models.NewMessage{
		ChatID:  chatID,
		Content: userMessageText(req),
		Sender:  models.SenderUser,
		Type:    models.MessageTypeMessage,
	})
	if err != nil {
		logger.Log.Errorf("[CHAT] store user message in %s: %v", chatID, err)
		return nil, err
	}

	result, err := s.analyzer.Analyze(ctx, req, progress...)
	if err != nil {
		return nil, err
	}
	adjusted := *result
	adjusted.Confidence = AdjustConfidence(string(result.Bias), result.Confidence, result.MissingPerspectives)

	sysMsg, err := s.store.AddMessage(ctx, owner, models.NewMessage{
		ChatID:       chatID,
		Content:      AnalysisSummary(&adjusted),
		Sender:       models.SenderSystem,
		Type:         models.MessageTypeAnalysis,
		AnalysisData: &adjusted,
	})
	if err != nil {
		logger.Log.Errorf("[CHAT] store analysis in %s: %v", chatID, err)
		return nil, err
	}

	if s.publishers != nil && !adjusted.Fallback {
		if err := s.publishers.Record(ctx, adjusted.Owner, adjusted.Bias, adjusted.Confidence); err != nil {
			logger.Log.Warnf("[CHAT] publisher stats for %q: %v", adjusted.Owner, err)
		}
	}

	logger.Log.Infof("[CHAT] %s analysed in %s: %s %.2f", owner, chatID, adjusted.Bias, adjusted.Confidence)
	return &AnalysisExchange{UserMessage: userMsg, SystemMessage: sysMsg}, nil
}

// PrepareRequest fills content from req.URL when only a link was given,
// along with title and source when those are missing.
func PrepareRequest(ctx context.Context, fetcher ArticleFetcher, req models.AnalysisRequest) (models.AnalysisRequest, error) {
	if strings.TrimSpace(req.Content) != "" || strings.TrimSpace(req.URL) == "" {
		return req, nil
	}
	if fetcher == nil {
		return req, apperr.Validation(apperr.CodeMissingField, "content is required")
	}
	a, err := fetcher.FetchURL(ctx, req.URL)
	if err != nil {
		return req, err
	}
	req.Content = a.Text
	if strings.TrimSpace(req.Title) == "" {
		req.Title = a.Title
	}
	if strings.TrimSpace(req.Source) == "" {
		req.Source = a.SiteName
	}
	return req, nil
}

// AnalysisSummary is the human-readable text stored with an analysis.
func AnalysisSummary(r *models.BiasAnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bias: %s (%.0f%% confidence)\nPublisher: %s", r.Bias, r.Confidence*100, r.Owner)
	if len(r.MissingPerspectives) > 0 {
		b.WriteString("\nMissing perspectives: ")
		b.WriteString(strings.Join(r.MissingPerspectives, "; "))
	}
	if r.Reasoning != "" {
		b.WriteString("\n")
		b.WriteString(r.Reasoning)
	}
	return b.String()
}

func userMessageText(req models.AnalysisRequest) string {
	content := strings.TrimSpace(req.Content)
	if t := strings.TrimSpace(req.Title); t != "" {
		return t + "\n\n" + content
	}
	return content
}

func cleanTitle(title string) string {
	return trimRunes(strings.TrimSpace(title), maxTitleRunes)
}

func (s *ChatService) acquire(owner models.OwnerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[owner]; busy {
		return false
	}
	s.inflight[owner] = struct{}{}
	return true
}

func (s *ChatService) release(owner models.OwnerKey) {
	s.mu.Lock()
	delete(s.inflight, owner)
	s.mu.Unlock()
}

func (s *ChatService) invalidate(ctx context.Context, owner models.OwnerKey) {
	if err := s.cache.Del(ctx, chatCacheKey(owner)); err != nil {
		logger.Log.Warnf("[CHAT] cache invalidate %s: %v", owner, err)
	}
}
