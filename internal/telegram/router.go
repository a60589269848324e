package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Router wires Telegram updates to handlers and delivers outbound notifications.
type Router struct {
	bot       Bot
	log       *zap.Logger
	webAppURL string
	imageURL  string
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Bot, log *zap.Logger, webAppURL, imageURL string) *Router {
	return &Router{
		bot:       bot,
		log:       log,
		webAppURL: webAppURL,
		imageURL:  imageURL,
	}
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "start":
		r.handleStart(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	default:
		// Unknown commands are ignored.
	}
}

// handleStart greets the user with the onboarding card and the web app link.
func (r *Router) handleStart(_ context.Context, chatID int64, referralToken string) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(r.imageURL))
	photo.Caption = startCaption
	photo.ParseMode = tgbotapi.ModeMarkdown
	photo.ReplyMarkup = startKeyboard(startURL(r.webAppURL, referralToken))

	if _, err := r.bot.Send(photo); err != nil {
		r.log.Error("send start message failed", zap.Int64("chat_id", chatID), zap.Error(classify(err)))
		return
	}
	r.log.Info("start command handled", zap.Int64("chat_id", chatID), zap.Bool("referred", referralToken != ""))
}

// Send delivers a text with one button row per button.
// A chat that blocked the bot yields an error wrapping domain.ErrRecipientBlocked.
func (r *Router) Send(ctx context.Context, chatID int64, text string, buttons []domain.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		msg.ReplyMarkup = buttonsKeyboard(buttons)
	}
	if _, err := r.bot.Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps Telegram's 403 to domain.ErrRecipientBlocked.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", domain.ErrRecipientBlocked, apiErr.Message)
	}
	return err
}
