package handlers

import (
	"errors"
	"io"
	"net/http"

	"trusight/apperr"
	"trusight/logger"
	"trusight/services"
)

type OCRHandler struct {
	ocr *services.OCRClient
}

func NewOCRHandler(ocr *services.OCRClient) *OCRHandler {
	return &OCRHandler{ocr: ocr}
}

// Extract: POST /api/ocr, multipart field "file".
func (h *OCRHandler) Extract(w http.ResponseWriter, r *http.Request) {
	if h.ocr == nil {
		respondError(w, r, unavailable("text recognition"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxOCRBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, r, apperr.Validation(apperr.CodeFileTooLarge, "file exceeds the 10MB limit"))
			return
		}
		respondError(w, r, apperr.Validation(apperr.CodeMissingField, "file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxOCRBytes+1))
	if err != nil {
		respondError(w, r, apperr.Validation(apperr.CodeInvalidFormat, "could not read uploaded file"))
		return
	}

	result, err := h.ocr.Extract(r.Context(), header.Filename, data)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger.Log.Infof("[OCR] %s: %d pages, success=%t", header.Filename, result.Pages, result.Success)
	respondWithJSON(w, http.StatusOK, result)
}
