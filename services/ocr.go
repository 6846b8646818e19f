package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"trusight/apperr"
	"trusight/logger"
	"trusight/models"
)

const MaxOCRBytes = 10 << 20

// ocrTypes maps an accepted extension to its file type label and the
// content type the upload must sniff as.
var ocrTypes = map[string]struct {
	label string
	mime  string
}{
	".jpg":  {"JPG", "image/jpeg"},
	".jpeg": {"JPG", "image/jpeg"},
	".png":  {"PNG", "image/png"},
	".gif":  {"GIF", "image/gif"},
	".bmp":  {"BMP", "image/bmp"},
	".tif":  {"TIF", "image/tiff"},
	".tiff": {"TIF", "image/tiff"},
	".pdf":  {"PDF", "application/pdf"},
}

// OCRClient extracts text from images and PDFs through an
// OCR.space-compatible endpoint.
type OCRClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewOCRClient(apiKey, endpoint string, timeout time.Duration) *OCRClient {
	return &OCRClient{apiKey: apiKey, endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type ocrResponse struct {
	ParsedResults []struct {
		ParsedText        string          `json:"ParsedText"`
		FileParseExitCode json.RawMessage `json:"FileParseExitCode"`
		ErrorMessage      json.RawMessage `json:"ErrorMessage"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// ValidateUpload checks size and type and returns the file type label.
func ValidateUpload(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation(apperr.CodeMissingField, "file is required")
	}
	if len(data) > MaxOCRBytes {
		return "", apperr.Validation(apperr.CodeFileTooLarge, "file exceeds the 10 MB limit")
	}

	t, ok := ocrTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", apperr.Validation(apperr.CodeUnsupportedFile, "unsupported file type, use JPEG, PNG, GIF, BMP, TIFF or PDF")
	}
	sniffed := http.DetectContentType(data)
	if sniffed != t.mime && sniffed != "application/octet-stream" {
		return "", apperr.Validation(apperr.CodeUnsupportedFile,
			fmt.Sprintf("file content (%s) does not match its extension", sniffed))
	}
	return t.label, nil
}

// Extract uploads the file and returns its recognised text.
func (c *OCRClient) Extract(ctx context.Context, filename string, data []byte) (*models.OCRResult, error) {
	fileType, err := ValidateUpload(filename, data)
	if err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "OCR service is not configured", nil)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := map[string]string{
		"language":          "eng",
		"isOverlayRequired": "false",
		"filetype":          fileType,
		"scale":             "true",
		"OCREngine":         "2",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("building OCR request: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("building OCR request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("building OCR request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("building OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("building OCR request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("apikey", c.apiKey)

	logger.Log.Infof("[OCR] %s (%s, %d bytes)", filename, fileType, len(data))
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "OCR request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "OCR request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream(apperr.CodeUpstreamStatus, "OCR service error",
			fmt.Errorf("status %d: %s", resp.StatusCode, trimRunes(string(raw), 200)))
	}

	var parsed ocrResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamPayload, "OCR service returned an invalid response", err)
	}
	if parsed.IsErroredOnProcessing {
		msg := joinMessages(parsed.ErrorMessage)
		if msg == "" {
			msg = "processing failed"
		}
		return nil, apperr.Upstream(apperr.CodeUpstreamPayload, "OCR processing failed", fmt.Errorf("%s", msg))
	}

	texts := make([]string, 0, len(parsed.ParsedResults))
	for _, r := range parsed.ParsedResults {
		if t := strings.TrimSpace(r.ParsedText); t != "" {
			texts = append(texts, t)
		}
	}

	result := &models.OCRResult{
		Success:  true,
		Text:     strings.Join(texts, "\n\n"),
		Pages:    len(parsed.ParsedResults),
		Filename: filename,
		FileType: fileType,
	}
	if result.Text == "" {
		result.Success = false
		result.Error = "No text found in file"
	}
	logger.Log.Infof("[OCR] %s: %d pages, %d characters in %s", filename, result.Pages, len(result.Text), time.Since(start).Round(time.Millisecond))
	return result, nil
}

// joinMessages reads an ErrorMessage that is either a string or a list.
func joinMessages(m json.RawMessage) string {
	if len(m) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(m, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	return ""
}
