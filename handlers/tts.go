package handlers

import (
	"net/http"
	"strconv"

	"trusight/services"
)

type TTSHandler struct {
	speech *services.SpeechClient
}

func NewTTSHandler(speech *services.SpeechClient) *TTSHandler {
	return &TTSHandler{speech: speech}
}

type speechBody struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

// Speak: POST /api/tts → audio/mpeg
func (h *TTSHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req speechBody
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	audio, err := h.speech.Synthesize(r.Context(), req.Text, req.VoiceID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
