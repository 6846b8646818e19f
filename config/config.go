package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	groqBaseURL       = "https://api.groq.com/openai/v1"
)

type Config struct {
	Port          string
	PublicBaseURL string
	AdminToken    string
	AdminDir      string

	DbUrl    string
	RedisUrl string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	UseGroq    bool
	PromptFile string

	OCRAPIKey string
	OCRURL    string

	TTSAPIKey  string
	TTSURL     string
	TTSVoiceID string

	TelegramToken string
	BotAPIBase    string
	WebhookURL    string
	WebhookPort   string

	LogLevel string
	LogFile  string

	AnalyzeRPM   int
	AnalyzeBurst int
	ShareTTL     time.Duration
	HTTPTimeout  time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Port:          getEnvOrDefault("PORT", "8080"),
		PublicBaseURL: strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		AdminDir:      os.Getenv("ADMIN_DIR"),
		DbUrl:         os.Getenv("DB_URL"),
		RedisUrl:      os.Getenv("REDIS_URL"),
		UseGroq:       os.Getenv("USE_GROQ") == "true",
		PromptFile:    getEnvOrDefault("PROMPT_FILE", "config/prompts.yaml"),
		OCRAPIKey:     os.Getenv("OCR_API_KEY"),
		OCRURL:        getEnvOrDefault("OCR_URL", "https://api.ocr.space/parse/image"),
		TTSAPIKey:     os.Getenv("TTS_API_KEY"),
		TTSURL:        strings.TrimRight(getEnvOrDefault("TTS_URL", "https://api.elevenlabs.io/v1/text-to-speech"), "/"),
		TTSVoiceID:    getEnvOrDefault("TTS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		BotAPIBase:    os.Getenv("API_BASE"),
		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		WebhookPort:   getEnvOrDefault("WEBHOOK_PORT", "8443"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:       os.Getenv("LOG_FILE"),
	}

	if cfg.UseGroq {
		cfg.LLMBaseURL = getEnvOrDefault("LLM_BASE_URL", groqBaseURL)
		cfg.LLMAPIKey = getEnvOrDefault("GROQ_API_KEY", os.Getenv("LLM_API_KEY"))
		cfg.LLMModel = getEnvOrDefault("GROQ_MODEL", "llama-3.3-70b-versatile")
	} else {
		cfg.LLMBaseURL = getEnvOrDefault("LLM_BASE_URL", openRouterBaseURL)
		cfg.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", os.Getenv("OPENROUTER_API_KEY"))
		cfg.LLMModel = getEnvOrDefault("LLM_MODEL", "openai/gpt-4o-mini")
	}

	if cfg.BotAPIBase == "" {
		cfg.BotAPIBase = "http://localhost:" + cfg.Port
	}

	var err error
	if cfg.AnalyzeRPM, err = getEnvInt("ANALYZE_RPM", 20); err != nil {
		return nil, err
	}
	if cfg.AnalyzeBurst, err = getEnvInt("ANALYZE_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.ShareTTL, err = getEnvDuration("SHARE_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Provider names the completion backend for logs.
func (c *Config) Provider() string {
	if c.UseGroq {
		return "groq"
	}
	return "openrouter"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
