package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"trusight/logger"
	"trusight/models"
)

const (
	analysisTimeout = 3 * time.Minute
	editInterval    = 2 * time.Second
	maxCallbackData = 64
)

type Bot struct {
	api    *tgbotapi.BotAPI
	client *APIClient

	activeMu sync.Mutex
	active   map[int64]*analysisRun

	// payloads too long for callback data, keyed by "chat:msg"
	historyMu sync.Mutex
	history   map[string]models.AnalysisRequest
}

func NewBot(token, apiBase string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Bot{
		api:     api,
		client:  NewAPIClient(apiBase),
		active:  map[int64]*analysisRun{},
		history: map[string]models.AnalysisRequest{},
	}, nil
}

func (b *Bot) Username() string { return b.api.Self.UserName }

// RunPolling receives updates with long polling until ctx ends.
func (b *Bot) RunPolling(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		logger.Log.Warnf("[BOT] delete webhook: %v", err)
	}
	logger.Log.Info("[BOT] mode: polling")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	b.dispatch(ctx, updates)
	return nil
}

// RunWebhook registers baseURL with Telegram and serves updates on port.
// The path contains the bot token, which keeps it secret.
func (b *Bot) RunWebhook(ctx context.Context, baseURL, port string) error {
	path := "/" + b.api.Token
	fullURL := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(fullURL)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		logger.Log.Warnf("[BOT] last webhook error: %s", info.LastErrorMessage)
	}

	mux := http.NewServeMux()
	updates := make(chan tgbotapi.Update, b.api.Buffer)
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			logger.Log.Warnf("[BOT] bad update: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		select {
		case updates <- *update:
		case <-ctx.Done():
		}
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		logger.Log.Infof("[BOT] mode: webhook %s on :%s", baseURL, port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Errorf("[BOT] webhook server: %v", err)
		}
	}()

	b.dispatch(ctx, updates)
	return nil
}

func (b *Bot) dispatch(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		var update tgbotapi.Update
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			update = u
		}

		switch {
		case update.Message != nil:
			go b.handleMessage(ctx, update.Message)
		case update.CallbackQuery != nil:
			go b.handleCallback(ctx, update.CallbackQuery)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.ForwardFromChat != nil || msg.ForwardFrom != nil || msg.ForwardSenderName != "" {
		b.handleForwarded(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch text {
	case "":
		return
	case "/start":
		b.send(chatID, startText())
		return
	case "/help":
		b.send(chatID, helpText())
		return
	case "/cancel":
		b.cancelAnalysis(chatID)
		b.send(chatID, "⛔ Analysis cancelled.")
		return
	}

	b.startAnalysis(ctx, chatID, RequestFromText(text, ""), "")
}

func (b *Bot) handleForwarded(ctx context.Context, msg *tgbotapi.Message) {
	sourceName, sourceLink := forwardSource(msg)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if u := firstLink(text, append(msg.Entities, msg.CaptionEntities...)); u != "" {
		text = u
	}
	if text == "" {
		b.send(msg.Chat.ID, "🙏 <b>Please forward a post with text or a link.</b>")
		return
	}

	label := escHTML(sourceName)
	if sourceName != "" && sourceLink != "" {
		label = fmt.Sprintf("<a href=\"%s\">%s</a>", sourceLink, escHTML(sourceName))
	}
	b.startAnalysis(ctx, msg.Chat.ID, RequestFromText(text, sourceName), label)
}

// RequestFromText turns a chat message into an analysis request: a bare
// link is fetched by the API, anything else is analysed as article text.
func RequestFromText(text, source string) models.AnalysisRequest {
	text = strings.TrimSpace(text)
	if isURL(text) && !strings.ContainsAny(text, " \n") {
		return models.AnalysisRequest{URL: text, Source: source}
	}
	return models.AnalysisRequest{Content: text, Source: source}
}

func forwardSource(msg *tgbotapi.Message) (name, link string) {
	switch {
	case msg.ForwardFromChat != nil:
		chat := msg.ForwardFromChat
		name = chat.Title
		if chat.UserName != "" {
			link = "https://t.me/" + chat.UserName
		}
	case msg.ForwardFrom != nil:
		u := msg.ForwardFrom
		if u.UserName != "" {
			name = "@" + u.UserName
			link = "https://t.me/" + u.UserName
		} else {
			name = strings.TrimSpace(u.FirstName + " " + u.LastName)
		}
	default:
		name = msg.ForwardSenderName
	}
	return name, link
}

// firstLink returns the first url or text_link entity in text.
func firstLink(text string, entities []tgbotapi.MessageEntity) string {
	runes := []rune(text)
	for _, e := range entities {
		if e.Type != "url" && e.Type != "text_link" {
			continue
		}
		if e.URL != "" {
			return e.URL
		}
		if e.Offset >= 0 && e.Offset+e.Length <= len(runes) {
			return string(runes[e.Offset : e.Offset+e.Length])
		}
	}
	return ""
}

func (b *Bot) startAnalysis(parent context.Context, chatID int64, req models.AnalysisRequest, sourceLabel string) {
	b.cancelAnalysis(chatID)

	initText := "⏳ <b>Analysing...</b>"
	if sourceLabel != "" {
		initText = fmt.Sprintf("⏳ <b>Analysing...</b>\n📢 Source: %s", sourceLabel)
	}
	initMsg := b.sendAndGet(chatID, initText)
	if initMsg == nil {
		return
	}
	b.launch(parent, chatID, initMsg.MessageID, req, sourceLabel)
}

func (b *Bot) launch(parent context.Context, chatID int64, msgID int, req models.AnalysisRequest, sourceLabel string) {
	ctx, cancel := context.WithTimeout(parent, analysisTimeout)
	run := b.registerAnalysis(chatID, cancel)

	go func() {
		defer func() {
			cancel()
			b.unregisterAnalysis(chatID, run)
		}()
		b.runAnalysis(ctx, chatID, msgID, req, sourceLabel)
	}()
}

func (b *Bot) runAnalysis(ctx context.Context, chatID int64, msgID int, req models.AnalysisRequest, sourceLabel string) {
	var (
		progressLines []string
		lastEdit      time.Time
		finalResult   *models.BiasAnalysisResult
		analysisErr   string
	)

	reScanData := b.rememberRequest(chatID, msgID, req)

	err := b.client.StreamAnalyze(ctx, chatID, req, func(ev SSEEvent) {
		switch ev.Type {
		case "start", "progress":
			progressLines = append(progressLines, ev.Data)
			if time.Since(lastEdit) >= editInterval {
				b.edit(chatID, msgID, FormatProgress(progressLines))
				lastEdit = time.Now()
			}
		case "result":
			r, parseErr := ParseResult(ev.Data)
			if parseErr != nil {
				logger.Log.Warnf("[BOT] bad result payload: %v", parseErr)
				return
			}
			finalResult = r
		case "error":
			analysisErr = ev.Data
		}
	})

	switch {
	case ctx.Err() == context.Canceled:
		return

	case finalResult != nil:
		shareURL, shareErr := b.client.Share(ctx, chatID, msgID, finalResult)
		if shareErr != nil {
			logger.Log.Warnf("[BOT] share for chat %d: %v", chatID, shareErr)
		}
		b.editWithKeyboard(chatID, msgID, FormatResult(finalResult, sourceLabel), ResultKeyboard(shareURL, reScanData))

	case analysisErr != "":
		b.edit(chatID, msgID, "❌ <b>Analysis failed:</b>\n<code>"+escHTML(analysisErr)+"</code>")

	case err != nil:
		b.edit(chatID, msgID, "❌ <b>Could not reach the API:</b>\n<code>"+escHTML(err.Error())+"</code>")

	default:
		b.edit(chatID, msgID, "⚠️ Analysis finished without a result.")
	}
}

// rememberRequest returns callback data for the re-check button. Short
// requests are inlined; longer ones are kept in memory.
func (b *Bot) rememberRequest(chatID int64, msgID int, req models.AnalysisRequest) string {
	raw, _ := json.Marshal(req)
	if len("rescan:")+len(raw) <= maxCallbackData {
		return string(raw)
	}
	key := fmt.Sprintf("%d:%d", chatID, msgID)
	b.historyMu.Lock()
	b.history[key] = req
	b.historyMu.Unlock()
	return "key:" + key
}

func (b *Bot) recallRequest(data string) (models.AnalysisRequest, bool) {
	if key, ok := strings.CutPrefix(data, "key:"); ok {
		b.historyMu.Lock()
		defer b.historyMu.Unlock()
		req, found := b.history[key]
		return req, found
	}
	var req models.AnalysisRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return req, false
	}
	return req, req.Content != "" || req.URL != ""
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data, ok := strings.CutPrefix(cb.Data, "rescan:")
	if !ok || cb.Message == nil {
		return
	}

	req, found := b.recallRequest(data)
	if !found {
		b.api.Request(tgbotapi.NewCallback(cb.ID, "❌ Nothing to re-check"))
		return
	}

	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	b.api.Request(tgbotapi.NewCallback(cb.ID, "🔄 Re-checking..."))
	b.edit(chatID, msgID, "⏳ <b>Analysing... (again)</b>")

	b.cancelAnalysis(chatID)
	b.launch(ctx, chatID, msgID, req, "")
}

func (b *Bot) send(chatID int64, text string) {
	b.sendAndGet(chatID, text)
}

func (b *Bot) sendAndGet(chatID int64, text string) *tgbotapi.Message {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	sent, err := b.api.Send(msg)
	if err != nil {
		logger.Log.Warnf("[BOT] send to %d: %v", chatID, err)
		return nil
	}
	return &sent
}

func (b *Bot) edit(chatID int64, msgID int, text string) {
	cfg := tgbotapi.NewEditMessageText(chatID, msgID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	if _, err := b.api.Send(cfg); err != nil {
		logger.Log.Warnf("[BOT] edit %d/%d: %v", chatID, msgID, err)
	}
}

func (b *Bot) editWithKeyboard(chatID int64, msgID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	cfg := tgbotapi.NewEditMessageText(chatID, msgID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	if len(kb.InlineKeyboard) > 0 {
		cfg.ReplyMarkup = &kb
	}
	if _, err := b.api.Send(cfg); err != nil {
		logger.Log.Warnf("[BOT] edit %d/%d: %v", chatID, msgID, err)
	}
}

// analysisRun identifies one launch, so a finished run never removes
// the run that replaced it.
type analysisRun struct {
	cancel context.CancelFunc
}

func (b *Bot) registerAnalysis(chatID int64, cancel context.CancelFunc) *analysisRun {
	run := &analysisRun{cancel: cancel}
	b.activeMu.Lock()
	defer b.activeMu.Unlock()
	if prev, ok := b.active[chatID]; ok {
		prev.cancel()
	}
	b.active[chatID] = run
	return run
}

func (b *Bot) unregisterAnalysis(chatID int64, run *analysisRun) {
	b.activeMu.Lock()
	defer b.activeMu.Unlock()
	if b.active[chatID] == run {
		delete(b.active, chatID)
	}
}

func (b *Bot) cancelAnalysis(chatID int64) {
	b.activeMu.Lock()
	defer b.activeMu.Unlock()
	if run, ok := b.active[chatID]; ok {
		run.cancel()
		delete(b.active, chatID)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
