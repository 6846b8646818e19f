package handlers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"trusight/database"
	"trusight/logger"
	"trusight/services"
)

// Deps is everything the HTTP surface needs. Nil stores and services
// make their endpoints answer 503.
type Deps struct {
	AdminToken string
	AdminDir   string

	Analyzer   *services.BiasAnalyzer
	Fetcher    services.ArticleFetcher
	Probe      *services.Probe
	Limiter    *services.RateLimiter
	Chats      *services.ChatService
	Shares     *services.ShareService
	Contacts   *services.ContactService
	OCR        *services.OCRClient
	Speech     *services.SpeechClient
	Publishers *database.PublisherStore
	Stats      *database.StatsStore
}

func NewRouter(d Deps) http.Handler {
	analyzerHandler := NewAnalyzerHandler(d.Analyzer, d.Fetcher, d.Probe, d.Limiter)
	chatHandler := NewChatHandler(d.Chats)
	shareHandler := NewShareHandler(d.Shares)
	contactHandler := NewContactHandler(d.Contacts)
	ocrHandler := NewOCRHandler(d.OCR)
	ttsHandler := NewTTSHandler(d.Speech)
	publisherHandler := NewPublisherHandler(d.Publishers)
	adminHandler := NewAdminHandler(d.AdminToken, d.Analyzer, d.Stats)

	r := mux.NewRouter()
	r.Use(requestLogger, OwnerMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	limited := RateLimit(d.Limiter)

	api.Handle("/analyze", limited(http.HandlerFunc(analyzerHandler.Analyze))).Methods(http.MethodPost)
	api.Handle("/analyze/stream", limited(http.HandlerFunc(analyzerHandler.AnalyzeStream))).Methods(http.MethodPost)
	api.HandleFunc("/health", analyzerHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/status", analyzerHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/limits", analyzerHandler.Limits).Methods(http.MethodGet)

	api.HandleFunc("/ocr", ocrHandler.Extract).Methods(http.MethodPost)
	api.HandleFunc("/tts", ttsHandler.Speak).Methods(http.MethodPost)
	api.HandleFunc("/contact", contactHandler.Submit).Methods(http.MethodPost)
	api.HandleFunc("/publishers/top", publisherHandler.Top).Methods(http.MethodGet)

	api.HandleFunc("/share", shareHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/share", shareHandler.Get).Methods(http.MethodGet)
	r.HandleFunc("/s/{id}", shareHandler.ShowPage).Methods(http.MethodGet)

	api.HandleFunc("/chats", chatHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/chats", chatHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}", chatHandler.Rename).Methods(http.MethodPatch)
	api.HandleFunc("/chats/{id}", chatHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{id}/messages", chatHandler.AddMessage).Methods(http.MethodPost)
	api.Handle("/chats/{id}/analyze", limited(http.HandlerFunc(chatHandler.Analyze))).Methods(http.MethodPost)

	// Admin API
	api.HandleFunc("/admin/stats", adminHandler.AuthMiddleware(adminHandler.GetStats)).Methods(http.MethodGet)
	api.HandleFunc("/admin/pause", adminHandler.AuthMiddleware(adminHandler.Pause)).Methods(http.MethodPost)
	api.HandleFunc("/admin/resume", adminHandler.AuthMiddleware(adminHandler.Resume)).Methods(http.MethodPost)
	api.HandleFunc("/admin/status", adminHandler.AuthMiddleware(adminHandler.GetStatus)).Methods(http.MethodGet)
	api.HandleFunc("/admin/logs", adminHandler.StreamLogs)

	if d.AdminDir != "" {
		r.PathPrefix("/admin/").Handler(http.StripPrefix("/admin/", http.FileServer(http.Dir(d.AdminDir))))
	}

	return cors(r)
}

// cors wraps the whole router so preflight requests are answered even for
// paths that only register non-OPTIONS methods.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Session-ID, X-Admin-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Log.Debugf("[HTTP] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
