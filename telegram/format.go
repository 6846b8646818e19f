package telegram

import (
	"fmt"
	"math"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"trusight/models"
	"trusight/services"
)

const maxListed = 5

func escHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func biasEmoji(b models.Bias) string {
	switch b {
	case models.BiasLeft:
		return "🔵"
	case models.BiasRight:
		return "🔴"
	case models.BiasNeutral:
		return "🟢"
	default:
		return "🟣"
	}
}

// FormatResult renders a classification as Telegram HTML. The confidence
// shown is the adjusted value, matching what chat histories store.
func FormatResult(r *models.BiasAnalysisResult, sourceLabel string) string {
	confidence := services.AdjustConfidence(string(r.Bias), r.Confidence, r.MissingPerspectives)
	filled := int(math.Round(confidence * 10))

	var b strings.Builder

	if sourceLabel != "" {
		fmt.Fprintf(&b, "📢 <b>Source:</b> %s\n", sourceLabel)
	}

	fmt.Fprintf(&b, "%s <b>%s</b>\n", biasEmoji(r.Bias), escHTML(string(r.Bias)))
	b.WriteString("<code>[")
	b.WriteString(strings.Repeat("█", filled))
	b.WriteString(strings.Repeat("░", 10-filled))
	fmt.Fprintf(&b, "]</code> %.0f%% confidence\n", confidence*100)
	fmt.Fprintf(&b, "🏢 %s\n", escHTML(r.Owner))

	if r.Reasoning != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", escHTML(r.Reasoning))
	}

	if len(r.MissingPerspectives) > 0 {
		b.WriteString("\n❓ <b>Missing perspectives:</b>\n")
		for i, p := range r.MissingPerspectives {
			if i == maxListed {
				break
			}
			fmt.Fprintf(&b, "• %s\n", escHTML(p))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func FormatProgress(events []string) string {
	if len(events) == 0 {
		return "⏳ <b>Analysing...</b>"
	}
	last := events[len(events)-1]
	spinner := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	sp := spinner[len(events)%len(spinner)]
	return fmt.Sprintf("%s <b>Analysing...</b>\n\n<code>%s</code>", sp, escHTML(last))
}

func ResultKeyboard(shareURL, reScanData string) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if shareURL != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("🔗 Share", shareURL))
	}
	if reScanData != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🔄 Re-check", "rescan:"+reScanData))
	}
	if len(row) == 0 {
		return tgbotapi.NewInlineKeyboardMarkup()
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func startText() string {
	return `🔍 <b>TruSight Bot</b>

I tell you which way a news article leans politically and which perspectives it leaves out.

<b>How to use:</b>
• Send an article <b>URL</b>
• Paste the article <b>text</b>
• <b>Forward</b> a post from a channel

<b>Commands:</b>
/cancel - stop the current analysis
/help - help`
}

func helpText() string {
	return `📖 <b>Help</b>

<b>Send a link:</b>
<code>https://example.com/article</code>

<b>Forward a post:</b>
The channel name is used as the publication when the article does not name one.

<b>The result shows:</b>
• Leaning: Left-Leaning, Center, Right-Leaning or Neutral
• Confidence
• Publisher
• Missing perspectives

<b>Commands:</b>
/cancel - stop the analysis
/start - main menu`
}
