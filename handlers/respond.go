package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"trusight/apperr"
	"trusight/logger"
)

const maxJSONBody = 1 << 20

func respondWithJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("[HTTP] encode response: %v", err)
	}
}

// respondError writes err as {error, details}. Validation errors carry
// their message in details; upstream errors carry the cause.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := map[string]string{"error": apperr.PublicMessage(err)}

	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindValidation {
		body["error"] = "Invalid request"
		body["details"] = ae.Message
	} else if d := apperr.Details(err); d != "" {
		body["details"] = d
	}

	if status >= http.StatusInternalServerError {
		logger.Log.Errorf("[HTTP] %s %s: %v", r.Method, r.URL.Path, err)
	}
	respondWithJSON(w, status, body)
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation(apperr.CodeMissingField, "request body is required")
		}
		return apperr.Validation(apperr.CodeInvalidFormat, "request body is not valid JSON")
	}
	return nil
}

func unavailable(what string) error {
	return apperr.Unavailable(apperr.CodeNoBackend, what+" is not available")
}
