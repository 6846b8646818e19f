package handlers

import (
	"net/http"

	"trusight/models"
	"trusight/services"
)

type ContactHandler struct {
	contacts *services.ContactService
}

func NewContactHandler(contacts *services.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.contacts == nil {
		respondError(w, r, unavailable("contact form"))
		return
	}
	var req models.ContactSubmission
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	msg, err := h.contacts.Submit(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": msg,
	})
}
