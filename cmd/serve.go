package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trusight/cache"
	"trusight/config"
	"trusight/database"
	"trusight/handlers"
	"trusight/logger"
	"trusight/services"
)

const shutdownTimeout = 15 * time.Second

var flagPurgeSchedule string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagPurgeSchedule, "purge-schedule", "@hourly", "cron schedule for deleting expired share links")
}

func loadPrompts() (*config.PromptConfig, error) {
	prompts, embedded, err := config.LoadPromptConfig(cfg.PromptFile)
	if err != nil {
		return nil, err
	}
	if embedded {
		logger.Log.Infof("[CONFIG] %s not found, using built-in prompts", cfg.PromptFile)
	}
	return prompts, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("[MAIN] starting trusight")

	prompts, err := loadPrompts()
	if err != nil {
		return err
	}

	db, err := database.InitDB(ctx, cfg.DbUrl)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	rc := cache.InitRedis(ctx, cfg.RedisUrl)
	defer rc.Close()

	if cfg.LLMAPIKey == "" {
		logger.Log.Warnf("[MAIN] no API key for %s, every analysis will return the fallback result", cfg.Provider())
	}
	llm := services.NewLLMClient(cfg)
	analyzer := services.NewBiasAnalyzer(llm, cfg.LLMModel, prompts)
	fetcher := services.NewContentFetcher()
	limiter := services.NewRateLimiter(cfg.AnalyzeRPM, cfg.AnalyzeBurst)

	deps := handlers.Deps{
		AdminToken: cfg.AdminToken,
		AdminDir:   cfg.AdminDir,
		Analyzer:   analyzer,
		Fetcher:    fetcher,
		Probe:      services.NewProbe(llm, cfg.Provider()),
		Limiter:    limiter,
		Speech:     services.NewSpeechClient(cfg.TTSAPIKey, cfg.TTSURL, cfg.TTSVoiceID, cfg.HTTPTimeout),
	}
	if cfg.OCRAPIKey != "" {
		deps.OCR = services.NewOCRClient(cfg.OCRAPIKey, cfg.OCRURL, cfg.HTTPTimeout)
	} else {
		logger.Log.Warn("[MAIN] OCR_API_KEY is not set, /api/ocr is disabled")
	}

	scheduler := services.NewScheduler()
	if db != nil {
		publishers := database.NewPublisherStore(db)
		shares := services.NewShareService(database.NewShareStore(db), rc, cfg.PublicBaseURL, cfg.ShareTTL)

		deps.Chats = services.NewChatService(database.NewChatStore(db), analyzer, fetcher, publishers, rc)
		deps.Shares = shares
		deps.Contacts = services.NewContactService(database.NewContactStore(db))
		deps.Publishers = publishers
		deps.Stats = database.NewStatsStore(db)

		if _, err := scheduler.SchedulePurge(flagPurgeSchedule, shares); err != nil {
			return fmt.Errorf("invalid --purge-schedule %q: %w", flagPurgeSchedule, err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("[MAIN] listening on %s (provider %s, model %s)", srv.Addr, cfg.Provider(), cfg.LLMModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Log.Info("[MAIN] shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
