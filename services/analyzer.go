package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"trusight/apperr"
	"trusight/config"
	"trusight/logger"
	"trusight/models"
)

// ChatClient is the subset of the OpenAI client the analyzer needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const (
	fallbackConfidence  = 0.3
	fallbackPerspective = "Additional context needed for accurate analysis"
	fallbackReasoning   = "The analysis service could not produce a result, so a neutral default classification was returned."
)

// NewLLMClient builds an OpenAI-compatible client for the configured
// provider (OpenRouter or Groq).
func NewLLMClient(cfg *config.Config) *openai.Client {
	oc := openai.DefaultConfig(cfg.LLMAPIKey)
	oc.BaseURL = cfg.LLMBaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	return openai.NewClientWithConfig(oc)
}

// BiasAnalyzer classifies article bias with one completion call. It never
// returns an upstream error: any failure yields the fixed fallback result.
type BiasAnalyzer struct {
	client  ChatClient
	model   string
	prompts *config.PromptConfig
	paused  atomic.Bool
}

func NewBiasAnalyzer(client ChatClient, model string, prompts *config.PromptConfig) *BiasAnalyzer {
	if prompts == nil {
		prompts = config.DefaultPromptConfig()
	}
	return &BiasAnalyzer{client: client, model: model, prompts: prompts}
}

// Pause makes Analyze refuse new work until Resume is called.
func (a *BiasAnalyzer) Pause()  { a.paused.Store(true) }
func (a *BiasAnalyzer) Resume() { a.paused.Store(false) }

func (a *BiasAnalyzer) Paused() bool { return a.paused.Load() }

// Analyze returns the normalized, unadjusted classification of req. It
// fails only on empty content or while paused.
func (a *BiasAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest, progress ...func(string)) (*models.BiasAnalysisResult, error) {
	report := func(msg string) {
		logger.Log.Infof("[ANALYZER] %s", msg)
		if len(progress) > 0 && progress[0] != nil {
			progress[0](msg)
		}
	}

	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.Validation(apperr.CodeMissingField, "content is required")
	}
	if a.Paused() {
		return nil, apperr.Unavailable(apperr.CodePaused, "analysis is paused by the administrator")
	}

	report(fmt.Sprintf("sending %d characters to %s", len(req.Content), a.model))
	start := time.Now()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.prompts.BuildSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(req)},
		},
		Temperature: 0.1,
		MaxTokens:   1000,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		logger.Log.Warnf("[ANALYZER] completion failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		report("model unavailable, using default classification")
		return FallbackResult(), nil
	}
	if len(resp.Choices) == 0 {
		logger.Log.Warn("[ANALYZER] completion returned no choices")
		report("model returned nothing, using default classification")
		return FallbackResult(), nil
	}

	content := resp.Choices[0].Message.Content
	report(fmt.Sprintf("model answered in %s (%d characters)", time.Since(start).Round(time.Millisecond), len(content)))

	result, err := ParseAnalysis(content)
	if err != nil {
		logger.Log.Warnf("[ANALYZER] unusable reply: %v", err)
		report("could not read the model reply, using default classification")
		return FallbackResult(), nil
	}

	report(fmt.Sprintf("bias %s, confidence %.2f, publisher %s", result.Bias, result.Confidence, result.Owner))
	return result, nil
}

// BuildUserPrompt embeds the article and whichever optional fields are set.
func BuildUserPrompt(req models.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("Analyze the political bias of the following article.\n\n")
	if t := strings.TrimSpace(req.Title); t != "" {
		fmt.Fprintf(&b, "Title: %s\n", t)
	}
	if s := strings.TrimSpace(req.Source); s != "" {
		fmt.Fprintf(&b, "Source: %s\n", s)
	}
	if u := strings.TrimSpace(req.URL); u != "" {
		fmt.Fprintf(&b, "URL: %s\n", u)
	}
	b.WriteString("Content:\n")
	b.WriteString(strings.TrimSpace(req.Content))
	return b.String()
}

// FallbackResult is returned whenever the model cannot be used.
func FallbackResult() *models.BiasAnalysisResult {
	r := Normalize(models.BiasAnalysisResult{
		Bias:                models.BiasCenter,
		Confidence:          fallbackConfidence,
		Owner:               models.UnknownPublisher,
		MissingPerspectives: []string{fallbackPerspective},
		Reasoning:           fallbackReasoning,
	})
	r.Fallback = true
	return &r
}

type rawAnalysis struct {
	Bias                json.RawMessage `json:"bias"`
	Confidence          json.RawMessage `json:"confidence"`
	Owner               json.RawMessage `json:"owner"`
	MissingPerspectives json.RawMessage `json:"missingPerspectives"`
	Reasoning           json.RawMessage `json:"reasoning"`
}

// ParseAnalysis decodes a model reply into a normalized result. A reply
// that is not a JSON object or has no bias field is an error.
func ParseAnalysis(reply string) (*models.BiasAnalysisResult, error) {
	payload := extractJSON(reply)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	if len(raw.Bias) == 0 || string(raw.Bias) == "null" {
		return nil, fmt.Errorf("reply has no bias field")
	}

	r := Normalize(models.BiasAnalysisResult{
		Bias:                models.Bias(rawString(raw.Bias)),
		Confidence:          rawNumber(raw.Confidence),
		Owner:               rawString(raw.Owner),
		MissingPerspectives: rawStrings(raw.MissingPerspectives),
		Reasoning:           rawString(raw.Reasoning),
	})
	return &r, nil
}

// Normalize coerces r into the result invariants. Applying it twice gives
// the same value as applying it once.
func Normalize(r models.BiasAnalysisResult) models.BiasAnalysisResult {
	if b, ok := models.ParseBias(string(r.Bias)); ok {
		r.Bias = b
	} else {
		r.Bias = models.BiasCenter
	}

	switch c := r.Confidence; {
	case c > 1:
		r.Confidence = 1
	case c < 0:
		r.Confidence = 0
	case math.IsNaN(c):
		r.Confidence = 0.5
	}

	r.Owner = strings.TrimSpace(r.Owner)
	if r.Owner == "" {
		r.Owner = models.UnknownPublisher
	}

	perspectives := make([]string, 0, len(r.MissingPerspectives))
	for _, p := range r.MissingPerspectives {
		if p = strings.TrimSpace(p); p != "" {
			perspectives = append(perspectives, p)
		}
	}
	r.MissingPerspectives = perspectives
	r.Reasoning = strings.TrimSpace(r.Reasoning)
	return r
}

// extractJSON strips markdown fences and surrounding prose from a reply.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i != -1 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func rawString(m json.RawMessage) string {
	var s string
	if err := json.Unmarshal(m, &s); err != nil {
		return ""
	}
	return s
}

// rawNumber accepts a JSON number or a numeric string. Anything else is NaN.
func rawNumber(m json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(m, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func rawStrings(m json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(m, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := rawString(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// trimRunes cuts s to at most n runes.
func trimRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
