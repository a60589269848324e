package telegram

import (
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// UI texts in English
const (
	startCaption = "🌟 *Join our gamified ecosystem where every mission contributes to real environmental change!*\n\n" +
		"🌱 *Complete daily green missions*\n" +
		"💫 *Earn rewards for climate action*\n" +
		"🌍 *Track your environmental impact*\n" +
		"💎 *Convert actions to carbon credits*\n" +
		"🎁 *Join airdrops and special events*\n\n" +
		"Start your climate hero journey now - every action counts! ⚡️"
	startButton = "🌟 Start Saving the Planet 🌍"
)

// startURL links into the web app, carrying the referral token (possibly empty).
func startURL(base, referralToken string) string {
	return strings.TrimRight(base, "/") + "/?referralToken=" + url.QueryEscape(referralToken)
}

func startKeyboard(webAppURL string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(startButton, webAppURL),
		),
	)
}

// buttonsKeyboard puts each button on its own row.
func buttonsKeyboard(buttons []domain.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
