package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trusight/apperr"
	"trusight/logger"
	"trusight/models"
	"trusight/services"
)

type AnalyzerHandler struct {
	analyzer *services.BiasAnalyzer
	fetcher  services.ArticleFetcher
	probe    *services.Probe
	limiter  *services.RateLimiter
}

func NewAnalyzerHandler(analyzer *services.BiasAnalyzer, fetcher services.ArticleFetcher, probe *services.Probe, limiter *services.RateLimiter) *AnalyzerHandler {
	return &AnalyzerHandler{analyzer: analyzer, fetcher: fetcher, probe: probe, limiter: limiter}
}

func (h *AnalyzerHandler) prepare(w http.ResponseWriter, r *http.Request) (models.AnalysisRequest, error) {
	var req models.AnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.URL) == "" {
		return req, apperr.Validation(apperr.CodeMissingField, "content is required")
	}
	return services.PrepareRequest(r.Context(), h.fetcher, req)
}

// Analyze returns the classification as produced by the model, before
// confidence adjustment.
func (h *AnalyzerHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := h.prepare(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logger.Log.Infof("[HANDLER] analyze done in %s (fallback=%t)", time.Since(start).Round(time.Millisecond), result.Fallback)
	respondWithJSON(w, http.StatusOK, result)
}

// AnalyzeStream reports progress as server-sent events and ends with the
// result.
func (h *AnalyzerHandler) AnalyzeStream(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.URL) == "" {
		respondError(w, r, apperr.Validation(apperr.CodeMissingField, "content is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendEvent := func(eventType, data string) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
		flusher.Flush()
	}
	sendProgress := func(msg string) {
		sendEvent("progress", msg)
	}

	sendEvent("start", "Starting analysis")

	if strings.TrimSpace(req.Content) == "" {
		sendProgress("Loading " + req.URL)
	}
	req, err := services.PrepareRequest(r.Context(), h.fetcher, req)
	if err != nil {
		sendEvent("error", apperr.PublicMessage(err))
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req, sendProgress)
	if err != nil {
		sendEvent("error", apperr.PublicMessage(err))
		return
	}

	payload, _ := json.Marshal(result)
	sendEvent("result", string(payload))
	sendEvent("done", "Analysis complete")
}

func (h *AnalyzerHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status probes the completion provider.
func (h *AnalyzerHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.probe == nil {
		respondWithJSON(w, http.StatusOK, services.ProbeStatus{Status: "disconnected", Message: "No provider configured"})
		return
	}
	respondWithJSON(w, http.StatusOK, h.probe.Check(r.Context()))
}

func (h *AnalyzerHandler) Limits(w http.ResponseWriter, r *http.Request) {
	snap := map[string]*services.RateLimitInfo{}
	if h.limiter != nil {
		snap = h.limiter.Snapshot()
	}
	respondWithJSON(w, http.StatusOK, snap)
}
