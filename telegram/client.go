package telegram

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trusight/models"
)

const streamTimeout = 3 * time.Minute

type SSEEvent struct {
	Type string
	Data string
}

// APIClient talks to the trusight HTTP API on behalf of Telegram chats.
type APIClient struct {
	base   string
	client *http.Client
}

func NewAPIClient(base string) *APIClient {
	return &APIClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: streamTimeout},
	}
}

// sessionFor keeps each Telegram chat in its own rate-limit bucket.
func sessionFor(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// StreamAnalyze posts req to /api/analyze/stream and calls cb for each
// server-sent event.
func (c *APIClient) StreamAnalyze(ctx context.Context, chatID int64, req models.AnalysisRequest, cb func(SSEEvent)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/analyze/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Session-ID", sessionFor(chatID))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Details != "" {
			return fmt.Errorf("API returned %d: %s", resp.StatusCode, apiErr.Details)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("API returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 256*1024)

	var eventType, eventData string
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			eventData = strings.TrimSpace(line[5:])
		case line == "" && eventType != "":
			cb(SSEEvent{Type: eventType, Data: eventData})
			eventType = ""
			eventData = ""
		}
	}
	return scanner.Err()
}

// ParseResult decodes the payload of a "result" event.
func ParseResult(data string) (*models.BiasAnalysisResult, error) {
	var r models.BiasAnalysisResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	if !r.Bias.Valid() {
		return nil, fmt.Errorf("unexpected bias label %q", r.Bias)
	}
	return &r, nil
}

// Share creates a public link for result. It returns "" when sharing is
// unavailable.
func (c *APIClient) Share(ctx context.Context, chatID int64, msgID int, result *models.BiasAnalysisResult) (string, error) {
	body, err := json.Marshal(models.ShareRequest{
		ChatID:       sessionFor(chatID),
		MessageID:    fmt.Sprintf("%d", msgID),
		AnalysisData: result,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/share", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", sessionFor(chatID))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("share returned status %d", resp.StatusCode)
	}

	var res struct {
		ShareURL string `json:"shareUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	return res.ShareURL, nil
}
