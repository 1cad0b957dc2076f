package notifications

import (
	"context"
	"fmt"
	"html"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snatcher/internal/config"
	"snatcher/internal/records"
)

// telegramService sends curator notifications through a Telegram bot.
type telegramService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func newTelegramService(cfg *config.Config) (*telegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Notifications.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &telegramService{
		bot:    bot,
		chatID: cfg.Notifications.TelegramChatID,
	}, nil
}

func (t *telegramService) sendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (t *telegramService) NotifyAwaitingDecision(ctx context.Context, rec *records.Record) error {
	text := fmt.Sprintf("📬 <b>%s</b>\n🏢 %s", html.EscapeString(rec.Title), html.EscapeString(rec.Company))
	if rec.CombinedScore != nil {
		text += fmt.Sprintf("\n📊 Combined score: %.3f", *rec.CombinedScore)
	}
	if rec.DecisionDeadline != nil {
		text += fmt.Sprintf("\n⏰ Decide by %s", rec.DecisionDeadline.Format(time.RFC1123))
	}
	text += "\nReply with approve, reject, or edit."
	return t.sendMessage(text)
}

func (t *telegramService) NotifyReminder(ctx context.Context, rec *records.Record, deadline time.Time) error {
	return t.sendMessage(fmt.Sprintf(
		"⏳ <b>Decision overdue</b>\n%s at %s\nDeadline was %s.",
		html.EscapeString(rec.Title), html.EscapeString(rec.Company), deadline.Format(time.RFC1123)))
}

func (t *telegramService) NotifyExpired(ctx context.Context, rec *records.Record) error {
	return t.sendMessage(fmt.Sprintf(
		"🗑 <b>Application expired</b>\n%s at %s received no decision.",
		html.EscapeString(rec.Title), html.EscapeString(rec.Company)))
}

func (t *telegramService) NotifyDraftFailed(ctx context.Context, rec *records.Record, cause string) error {
	return t.sendMessage(fmt.Sprintf(
		"❌ <b>Draft failed</b>\n%s at %s\n%s",
		html.EscapeString(rec.Title), html.EscapeString(rec.Company), html.EscapeString(cause)))
}

func (t *telegramService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	data := errorPayload(err, contextLabel)
	return t.sendMessage(fmt.Sprintf("⚠️ <b>%s</b>\n%s",
		html.EscapeString(data.title), html.EscapeString(data.message)))
}

func (t *telegramService) TestNotification(ctx context.Context) error {
	return t.sendMessage("🧪 Notification system test")
}
