package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"trusight/models"
	"trusight/services"
)

type ChatHandler struct {
	chats *services.ChatService
}

func NewChatHandler(chats *services.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type titleRequest struct {
	Title string `json:"title"`
}

type messageRequest struct {
	Content string `json:"content"`
}

func (h *ChatHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.chats == nil {
		respondError(w, r, unavailable("chat history"))
		return false
	}
	return true
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	list, err := h.chats.List(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req titleRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}
	hist, err := h.chats.Create(r.Context(), OwnerFrom(r.Context()), req.Title)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, hist)
}

func (h *ChatHandler) Rename(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req titleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.chats.Rename(r.Context(), OwnerFrom(r.Context()), mux.Vars(r)["id"], req.Title); err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	if err := h.chats.Delete(r.Context(), OwnerFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMessage stores a plain user message. System messages only come from
// the analysis pipeline.
func (h *ChatHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := h.chats.AddMessage(r.Context(), OwnerFrom(r.Context()), mux.Vars(r)["id"], req.Content, models.SenderUser)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}

// Analyze runs the full chat pipeline and returns both stored messages.
func (h *ChatHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req models.AnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ex, err := h.chats.Analyze(r.Context(), OwnerFrom(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ex)
}
