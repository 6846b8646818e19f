package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trusight/apperr"
	"trusight/logger"
)

const maxSpeechChars = 5000

// SpeechClient synthesises speech through an ElevenLabs-compatible API.
type SpeechClient struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	client       *http.Client
}

func NewSpeechClient(apiKey, baseURL, defaultVoice string, timeout time.Duration) *SpeechClient {
	return &SpeechClient{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultVoice: defaultVoice,
		client:       &http.Client{Timeout: timeout},
	}
}

type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings map[string]any `json:"voice_settings"`
}

// Synthesize returns MP3 audio for text. Text beyond the provider limit
// is cut.
func (c *SpeechClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation(apperr.CodeMissingField, "text is required")
	}
	text = trimRunes(text, maxSpeechChars)
	if voiceID == "" {
		voiceID = c.defaultVoice
	}
	if c.apiKey == "" {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "speech service is not configured", nil)
	}

	payload, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       "eleven_multilingual_v2",
		VoiceSettings: map[string]any{"stability": 0.5, "similarity_boost": 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+voiceID, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "speech request failed", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "speech request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(apperr.CodeUpstreamStatus, "speech service error",
			fmt.Errorf("status %d: %s", resp.StatusCode, trimRunes(string(audio), 200)))
	}

	logger.Log.Infof("[TTS] %d characters -> %d bytes in %s", len([]rune(text)), len(audio), time.Since(start).Round(time.Millisecond))
	return audio, nil
}
