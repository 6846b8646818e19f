package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/websocket"

	"trusight/database"
	"trusight/logger"
	"trusight/services"
)

type AdminHandler struct {
	token    string
	analyzer *services.BiasAnalyzer
	stats    *database.StatsStore
}

func NewAdminHandler(token string, analyzer *services.BiasAnalyzer, stats *database.StatsStore) *AdminHandler {
	return &AdminHandler{
		token:    token,
		analyzer: analyzer,
		stats:    stats,
	}
}

func (h *AdminHandler) authorized(token string) bool {
	if h.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

// AuthMiddleware checks the admin token. With no token configured every
// admin request is refused.
func (h *AdminHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r.Header.Get("X-Admin-Token")) {
			respondWithJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.analyzer.Pause()
	logger.Log.Warn("[ADMIN] analysis paused by administrator")
	h.GetStatus(w, r)
}

func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.analyzer.Resume()
	logger.Log.Info("[ADMIN] analysis resumed by administrator")
	h.GetStatus(w, r)
}

func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"is_paused":       h.analyzer.Paused(),
		"database":        h.stats != nil,
		"log_subscribers": logger.Stream.Subscribers(),
	})
}

func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, r, unavailable("database"))
		return
	}
	stats, err := h.stats.Summary(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamLogs pushes every log line to the websocket client. Browsers
// cannot set headers on websocket requests, so the token may also come
// from the query string.
func (h *AdminHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("X-Admin-Token")
	}
	if !h.authorized(token) {
		respondWithJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warnf("[ADMIN] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	logsChan := logger.Stream.Subscribe()
	defer logger.Stream.Unsubscribe(logsChan)

	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-logsChan:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
