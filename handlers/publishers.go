package handlers

import (
	"net/http"

	"trusight/database"
)

const topPublishers = 20

type PublisherHandler struct {
	store *database.PublisherStore
}

func NewPublisherHandler(store *database.PublisherStore) *PublisherHandler {
	return &PublisherHandler{store: store}
}

// Top lists publishers with the most analyses.
func (h *PublisherHandler) Top(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, r, unavailable("publisher statistics"))
		return
	}
	list, err := h.store.Top(r.Context(), topPublishers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}
