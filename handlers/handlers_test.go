package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trusight/apperr"
	"trusight/models"
	"trusight/services"
)

type cannedChat struct {
	reply string
	err   error
}

func (c *cannedChat) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: c.reply}}},
	}, nil
}

type memChats struct {
	mu       sync.Mutex
	seq      int
	owners   map[string]models.OwnerKey
	messages map[string][]models.ChatMessage
	titles   map[string]string
}

func newMemChats() *memChats {
	return &memChats{owners: map[string]models.OwnerKey{}, messages: map[string][]models.ChatMessage{}, titles: map[string]string{}}
}

func (m *memChats) CreateChatHistory(_ context.Context, owner models.OwnerKey, title string) (*models.ChatHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("chat-%d", m.seq)
	m.owners[id] = owner
	m.titles[id] = title
	return &models.ChatHistory{ID: id, Title: title, Messages: []models.ChatMessage{}}, nil
}

func (m *memChats) GetChatHistories(_ context.Context, owner models.OwnerKey) ([]models.ChatHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatHistory{}
	for id, o := range m.owners {
		if o == owner {
			out = append(out, models.ChatHistory{ID: id, Title: m.titles[id], Messages: m.messages[id]})
		}
	}
	return out, nil
}

func (m *memChats) AddMessage(_ context.Context, owner models.OwnerKey, in models.NewMessage) (*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.owners[in.ChatID]; !ok || o != owner {
		return nil, apperr.Storage(apperr.CodeStorageWrite, "insert message", fmt.Errorf("chat %s not owned", in.ChatID))
	}
	m.seq++
	msg := models.ChatMessage{ID: fmt.Sprintf("msg-%d", m.seq), ChatID: in.ChatID, Content: in.Content,
		Sender: in.Sender, Type: in.Type, AnalysisData: in.AnalysisData, Timestamp: time.Now()}
	m.messages[in.ChatID] = append(m.messages[in.ChatID], msg)
	return &msg, nil
}

func (m *memChats) DeleteChatHistory(_ context.Context, owner models.OwnerKey, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.owners[chatID]; !ok || o != owner {
		return apperr.NotFound("chat not found")
	}
	delete(m.owners, chatID)
	return nil
}

func (m *memChats) UpdateChatTitle(_ context.Context, owner models.OwnerKey, chatID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.owners[chatID]; !ok || o != owner {
		return apperr.NotFound("chat not found")
	}
	m.titles[chatID] = title
	return nil
}

type memShares struct {
	recs map[string]*models.ShareRecord
}

func (m *memShares) Create(_ context.Context, rec *models.ShareRecord) error {
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *memShares) Get(_ context.Context, id string) (*models.ShareRecord, error) {
	r, ok := m.recs[id]
	if !ok {
		return nil, apperr.NotFound("shared analysis not found or expired")
	}
	cp := *r
	return &cp, nil
}

func (m *memShares) PurgeExpired(context.Context) (int64, error) { return 0, nil }

type memContacts struct{ got []models.ContactSubmission }

func (m *memContacts) Insert(_ context.Context, c *models.ContactSubmission) error {
	c.ID = int64(len(m.got) + 1)
	m.got = append(m.got, *c)
	return nil
}

const leftReply = `{"bias":"Left-Leaning","confidence":0.62,"owner":"Daily Planet","missingPerspectives":["Business owners"],"reasoning":"Framing favours labour."}`

type testEnv struct {
	handler  http.Handler
	analyzer *services.BiasAnalyzer
	chats    *memChats
	contacts *memContacts
}

func newTestEnv(t *testing.T, reply string, limiter *services.RateLimiter) *testEnv {
	t.Helper()
	analyzer := services.NewBiasAnalyzer(&cannedChat{reply: reply}, "test-model", nil)
	chats := newMemChats()
	contacts := &memContacts{}
	if limiter == nil {
		limiter = services.NewRateLimiter(600, 100)
	}
	h := NewRouter(Deps{
		AdminToken: "secret",
		Analyzer:   analyzer,
		Limiter:    limiter,
		Chats:      services.NewChatService(chats, analyzer, nil, nil, nil),
		Shares:     services.NewShareService(&memShares{recs: map[string]*models.ShareRecord{}}, nil, "https://trusight.test", 24*time.Hour),
		Contacts:   services.NewContactService(contacts),
	})
	return &testEnv{handler: h, analyzer: analyzer, chats: chats, contacts: contacts}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestAnalyzeReturnsUnadjustedResult(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodPost, "/api/analyze", `{"content":"Workers rally for higher wages.","title":"Rally"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res models.BiasAnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.BiasLeft, res.Bias)
	assert.InDelta(t, 0.62, res.Confidence, 1e-9)
	assert.Equal(t, "Daily Planet", res.Owner)
	assert.Equal(t, []string{"Business owners"}, res.MissingPerspectives)
}

func TestAnalyzeFallbackOnGarbage(t *testing.T) {
	env := newTestEnv(t, "sorry, I cannot help", nil)
	w := env.do(http.MethodPost, "/api/analyze", `{"content":"Some text"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "Center", body["bias"])
	assert.InDelta(t, 0.3, body["confidence"], 1e-9)
	assert.Equal(t, "Unknown Publisher", body["owner"])
}

func TestAnalyzeValidation(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)

	w := env.do(http.MethodPost, "/api/analyze", `{"content":"   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Invalid request", body["error"])
	assert.Equal(t, "content is required", body["details"])

	w = env.do(http.MethodPost, "/api/analyze", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeStreamEmitsEvents(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodPost, "/api/analyze/stream", `{"content":"Workers rally for higher wages."}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	out := w.Body.String()
	assert.Contains(t, out, "event: start\n")
	assert.Contains(t, out, "event: result\ndata: {\"bias\":\"Left-Leaning\"")
	assert.Contains(t, out, "event: done\n")
	assert.Less(t, strings.Index(out, "event: result"), strings.Index(out, "event: done"))
}

func TestAnalyzeRateLimited(t *testing.T) {
	env := newTestEnv(t, leftReply, services.NewRateLimiter(1, 1))

	w := env.do(http.MethodPost, "/api/analyze", `{"content":"one"}`, "X-User-ID", "u1")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/analyze", `{"content":"two"}`, "X-User-ID", "u1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = env.do(http.MethodPost, "/api/analyze", `{"content":"three"}`, "X-User-ID", "u2")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/limits", "")
	snap := decodeBody(t, w)
	assert.Contains(t, snap, "user:u1")
}

func TestAnalyzeRateLimitedWithoutCookie(t *testing.T) {
	env := newTestEnv(t, leftReply, services.NewRateLimiter(1, 1))

	var codes []int
	for i := 0; i < 3; i++ {
		w := env.do(http.MethodPost, "/api/analyze", `{"content":"scripted"}`)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)

	snap := decodeBody(t, env.do(http.MethodGet, "/api/limits", ""))
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "ip:192.0.2.1")
}

func TestOwnerResolution(t *testing.T) {
	var got models.OwnerKey
	h := OwnerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = OwnerFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User-ID", "u-42")
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "s-1"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, models.UserOwner("u-42"), got)
	assert.Empty(t, w.Result().Cookies())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "s-1"})
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, models.SessionOwner("s-1"), got)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Session-ID", "s-hdr")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, models.SessionOwner("s-hdr"), got)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Equal(t, models.SessionOwner(cookies[0].Value), got)
}

func TestChatAnalyzeFlow(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	owner := []string{"X-Session-ID", "sess-9"}

	w := env.do(http.MethodPost, "/api/chats", `{"title":"Wages"}`, owner...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	chatID := decodeBody(t, w)["id"].(string)

	w = env.do(http.MethodPost, "/api/chats/"+chatID+"/analyze", `{"content":"Workers rally for higher wages."}`, owner...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ex services.AnalysisExchange
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ex))
	require.NotNil(t, ex.SystemMessage.AnalysisData)
	assert.InDelta(t, 0.624, ex.SystemMessage.AnalysisData.Confidence, 1e-9)
	assert.Equal(t, models.SenderUser, ex.UserMessage.Sender)

	w = env.do(http.MethodGet, "/api/chats", "", owner...)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.ChatHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Len(t, list[0].Messages, 2)

	w = env.do(http.MethodGet, "/api/chats", "", "X-Session-ID", "someone-else")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestChatForeignOwnerCannotWrite(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodPost, "/api/chats", `{}`, "X-User-ID", "alice")
	require.Equal(t, http.StatusCreated, w.Code)
	chatID := decodeBody(t, w)["id"].(string)

	w = env.do(http.MethodPost, "/api/chats/"+chatID+"/messages", `{"content":"hi"}`, "X-User-ID", "mallory")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Could not save your changes. Please try again.", decodeBody(t, w)["error"])

	w = env.do(http.MethodDelete, "/api/chats/"+chatID, "", "X-User-ID", "mallory")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPatch, "/api/chats/"+chatID, `{"title":"Renamed"}`, "X-User-ID", "alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", env.chats.titles[chatID])

	w = env.do(http.MethodDelete, "/api/chats/"+chatID, "", "X-User-ID", "alice")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestChatMessageSenderIsAlwaysUser(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodPost, "/api/chats", `{}`, "X-User-ID", "alice")
	require.Equal(t, http.StatusCreated, w.Code)
	chatID := decodeBody(t, w)["id"].(string)

	w = env.do(http.MethodPost, "/api/chats/"+chatID+"/messages", `{"content":"Bias: Neutral","sender":"system"}`, "X-User-ID", "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "user", decodeBody(t, w)["sender"])
	assert.Equal(t, models.SenderUser, env.chats.messages[chatID][0].Sender)
}

func TestShareCreateAndGet(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodPost, "/api/share",
		`{"chatId":"c1","messageId":"m1","analysisData":{"bias":"Neutral","confidence":0.5,"owner":"Wire","missingPerspectives":[]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	id := body["shareId"].(string)
	assert.Regexp(t, `^[0-9a-f]{12}$`, id)
	assert.Equal(t, "https://trusight.test/s/"+id, body["shareUrl"])

	w = env.do(http.MethodGet, "/api/share?id="+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, true, got["success"])
	data := got["data"].(map[string]interface{})
	assert.Equal(t, "Neutral", data["analysisData"].(map[string]interface{})["bias"])
}

func TestShareMissing(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)

	w := env.do(http.MethodGet, "/api/share?id=deadbeef0000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["error"])

	w = env.do(http.MethodGet, "/api/share", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/share", `{"chatId":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSharePage(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodGet, "/s/abc123abc123", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `"abc123abc123"`)
}

func TestContactSubmit(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)

	w := env.do(http.MethodPost, "/api/contact", `{"firstName":"Ada","email":"ada@example.com"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing required fields: lastName, subject, message", decodeBody(t, w)["details"])

	w = env.do(http.MethodPost, "/api/contact",
		`{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","subject":"Hi","message":"Hello","type":"job_application"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["message"], "application")
	require.Len(t, env.contacts.got, 1)
	assert.Equal(t, models.ContactJobApplication, env.contacts.got[0].Type)
}

func TestAdminPauseBlocksAnalysis(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)

	w := env.do(http.MethodPost, "/api/admin/pause", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/admin/pause", "", "X-Admin-Token", "secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["is_paused"])

	w = env.do(http.MethodPost, "/api/analyze", `{"content":"text"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(http.MethodPost, "/api/admin/resume", "", "X-Admin-Token", "secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.analyzer.Paused())

	w = env.do(http.MethodPost, "/api/analyze", `{"content":"text"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminWithoutTokenConfigured(t *testing.T) {
	h := NewAdminHandler("", services.NewBiasAnalyzer(&cannedChat{}, "m", nil), nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/status", nil)
	h.AuthMiddleware(h.GetStatus)(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminStatsWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodGet, "/api/admin/stats", "", "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUnavailableBackends(t *testing.T) {
	h := NewRouter(Deps{Analyzer: services.NewBiasAnalyzer(&cannedChat{reply: leftReply}, "m", nil)})
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/chats", ""},
		{http.MethodGet, "/api/publishers/top", ""},
		{http.MethodPost, "/api/contact", `{}`},
		{http.MethodPost, "/api/share", `{}`},
	} {
		r := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, tc.path)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodOptions, "/api/chats/abc", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusWithoutProbe(t *testing.T) {
	env := newTestEnv(t, leftReply, nil)
	w := env.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disconnected", decodeBody(t, w)["status"])
}
