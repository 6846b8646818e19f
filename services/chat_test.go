package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trusight/apperr"
	"trusight/models"
)

// memStore is an in-memory ChatRepository.
type memStore struct {
	mu        sync.Mutex
	histories map[string]*models.ChatHistory
	owners    map[string]models.OwnerKey
	seq       int
	listCalls int
}

func newMemStore() *memStore {
	return &memStore{histories: map[string]*models.ChatHistory{}, owners: map[string]models.OwnerKey{}}
}

func (m *memStore) CreateChatHistory(_ context.Context, owner models.OwnerKey, title string) (*models.ChatHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	h := &models.ChatHistory{ID: fmt.Sprintf("chat-%d", m.seq), Title: title, Messages: []models.ChatMessage{}, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.histories[h.ID] = h
	m.owners[h.ID] = owner
	cp := *h
	return &cp, nil
}

func (m *memStore) GetChatHistories(_ context.Context, owner models.OwnerKey) ([]models.ChatHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := []models.ChatHistory{}
	for id, h := range m.histories {
		if m.owners[id] == owner {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *memStore) AddMessage(_ context.Context, owner models.OwnerKey, in models.NewMessage) (*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[in.ChatID]
	if !ok || m.owners[in.ChatID] != owner {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message", fmt.Errorf("not owned"))
	}
	m.seq++
	msg := models.ChatMessage{
		ID: fmt.Sprintf("msg-%d", m.seq), ChatID: in.ChatID, Content: in.Content,
		Sender: in.Sender, Type: in.Type, AnalysisData: in.AnalysisData, Timestamp: time.Now(),
	}
	h.Messages = append(h.Messages, msg)
	return &msg, nil
}

func (m *memStore) DeleteChatHistory(_ context.Context, owner models.OwnerKey, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.histories[chatID]; !ok || m.owners[chatID] != owner {
		return apperr.NotFound("chat not found")
	}
	delete(m.histories, chatID)
	return nil
}

func (m *memStore) UpdateChatTitle(_ context.Context, owner models.OwnerKey, chatID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[chatID]
	if !ok || m.owners[chatID] != owner {
		return apperr.NotFound("chat not found")
	}
	h.Title = title
	return nil
}

type stubAnalyzer struct {
	paused  bool
	result  models.BiasAnalysisResult
	started chan struct{}
	unblock chan struct{}
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest, _ ...func(string)) (*models.BiasAnalysisResult, error) {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.unblock
	}
	r := s.result
	return &r, nil
}

func (s *stubAnalyzer) Paused() bool { return s.paused }

type recordedStat struct {
	owner      string
	bias       models.Bias
	confidence float64
}

type stubPublishers struct{ got []recordedStat }

func (p *stubPublishers) Record(_ context.Context, owner string, bias models.Bias, confidence float64) error {
	p.got = append(p.got, recordedStat{owner, bias, confidence})
	return nil
}

type stubFetcher struct{ article *Article }

func (f stubFetcher) FetchURL(context.Context, string) (*Article, error) {
	return f.article, nil
}

func TestChatAnalyzeAdjustsOnceAndPersists(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pubs := &stubPublishers{}
	svc := NewChatService(store, &stubAnalyzer{result: models.BiasAnalysisResult{
		Bias: models.BiasLeft, Confidence: 0.82, Owner: "Daily Planet",
		MissingPerspectives: []string{"Economic impact", "Opposition statement"},
	}}, nil, pubs, nil)

	owner := models.SessionOwner("s-1")
	h, err := svc.Create(ctx, owner, "")
	require.NoError(t, err)
	assert.Equal(t, "New analysis", h.Title)

	ex, err := svc.Analyze(ctx, owner, h.ID, models.AnalysisRequest{Content: "article body", Title: "Headline"})
	require.NoError(t, err)

	assert.Equal(t, models.SenderUser, ex.UserMessage.Sender)
	assert.Equal(t, "Headline\n\narticle body", ex.UserMessage.Content)
	assert.Equal(t, models.SenderSystem, ex.SystemMessage.Sender)
	assert.Equal(t, models.MessageTypeAnalysis, ex.SystemMessage.Type)
	require.NotNil(t, ex.SystemMessage.AnalysisData)
	assert.InDelta(t, 0.744, ex.SystemMessage.AnalysisData.Confidence, 1e-9)
	assert.Contains(t, ex.SystemMessage.Content, "Left-Leaning (74% confidence)")

	require.Len(t, pubs.got, 1)
	assert.Equal(t, "Daily Planet", pubs.got[0].owner)
	assert.InDelta(t, 0.744, pubs.got[0].confidence, 1e-9)

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Messages, 2)
}

func TestChatAnalyzeRejectsForeignChat(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewChatService(store, &stubAnalyzer{result: *FallbackResult()}, nil, nil, nil)

	h, err := svc.Create(ctx, models.UserOwner("alice"), "mine")
	require.NoError(t, err)

	_, err = svc.Analyze(ctx, models.UserOwner("mallory"), h.ID, models.AnalysisRequest{Content: "x"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStorage))
	assert.Equal(t, "Could not save your changes. Please try again.", apperr.PublicMessage(err))
}

func TestChatAnalyzeBlankContentStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewChatService(store, NewBiasAnalyzer(&stubChat{reply: "{}"}, "m", nil), nil, nil, nil)

	owner := models.SessionOwner("s-blank")
	h, err := svc.Create(ctx, owner, "t")
	require.NoError(t, err)

	_, err = svc.Analyze(ctx, owner, h.ID, models.AnalysisRequest{Content: "   "})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Empty(t, store.histories[h.ID].Messages)
}

func TestChatAnalyzeInFlightGuard(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	an := &stubAnalyzer{
		result:  models.BiasAnalysisResult{Bias: models.BiasCenter, Confidence: 0.5, Owner: "x", MissingPerspectives: []string{}},
		started: make(chan struct{}),
		unblock: make(chan struct{}),
	}
	svc := NewChatService(store, an, nil, nil, nil)
	owner := models.SessionOwner("busy")
	h, err := svc.Create(ctx, owner, "t")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(ctx, owner, h.ID, models.AnalysisRequest{Content: "first"})
		done <- err
	}()
	<-an.started

	_, err = svc.Analyze(ctx, owner, h.ID, models.AnalysisRequest{Content: "second"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	close(an.unblock)
	require.NoError(t, <-done)

	// guard is released once the first analysis finishes
	an.started = nil
	_, err = svc.Analyze(ctx, owner, h.ID, models.AnalysisRequest{Content: "third"})
	assert.NoError(t, err)
}

func TestChatAnalyzeFetchesURL(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	body := "Fetched article text"
	svc := NewChatService(store, &stubAnalyzer{result: *FallbackResult()},
		stubFetcher{&Article{Text: body, Title: "From page", SiteName: "Courier"}}, nil, nil)

	owner := models.UserOwner("u")
	h, err := svc.Create(ctx, owner, "t")
	require.NoError(t, err)

	ex, err := svc.Analyze(ctx, owner, h.ID, models.AnalysisRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, "From page\n\n"+body, ex.UserMessage.Content)
}

func TestChatRenameDeleteAddMessage(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewChatService(store, &stubAnalyzer{}, nil, nil, nil)
	owner := models.UserOwner("u")

	h, err := svc.Create(ctx, owner, "  first  ")
	require.NoError(t, err)
	assert.Equal(t, "first", h.Title)

	assert.True(t, apperr.Is(svc.Rename(ctx, owner, h.ID, "  "), apperr.KindValidation))
	require.NoError(t, svc.Rename(ctx, owner, h.ID, "second"))

	_, err = svc.AddMessage(ctx, owner, h.ID, "", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	m, err := svc.AddMessage(ctx, owner, h.ID, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, models.SenderUser, m.Sender)

	assert.True(t, apperr.Is(svc.Delete(ctx, models.UserOwner("other"), h.ID), apperr.KindNotFound))
	require.NoError(t, svc.Delete(ctx, owner, h.ID))

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestChatAnalyzePaused(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewChatService(store, &stubAnalyzer{paused: true}, nil, nil, nil)
	owner := models.UserOwner("u")
	h, err := svc.Create(ctx, owner, "t")
	require.NoError(t, err)

	_, err = svc.Analyze(ctx, owner, h.ID, models.AnalysisRequest{Content: "x"})
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list[0].Messages, "nothing is stored while paused")
}

func TestAnalysisSummary(t *testing.T) {
	s := AnalysisSummary(&models.BiasAnalysisResult{
		Bias: models.BiasNeutral, Confidence: 0.48, Owner: "Wire",
		MissingPerspectives: []string{"a", "b"}, Reasoning: "Plain facts.",
	})
	assert.Equal(t, "Bias: Neutral (48% confidence)\nPublisher: Wire\nMissing perspectives: a; b\nPlain facts.", s)
}
