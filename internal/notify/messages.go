package notify

import (
	"fmt"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// Message is one step of the limit-reached reminder sequence.
type Message struct {
	Format string // %s is replaced with the username
	Button string
}

// Sequence is sent in order, one step per cooldown window.
var Sequence = []Message{
	{
		Format: "🚨 Hey %s, you’ve reached your airdrop limit! Claim your rewards now to continue earning. 🌟",
		Button: "🌟 Claim Offsets",
	},
	{
		Format: "💡 Reminder: %s, you’re still at your airdrop limit. Claim to stand a chance of earning more offsets! 💎",
		Button: "🌟 Claim Offsets",
	},
	{
		Format: "🌍 Final Call: %s, unlock new opportunities and contribute to environmental missions today! 🚀",
		Button: "🚀 Contribute Now",
	},
}

// Render builds the text and buttons for username, all pointing at targetURL.
func (m Message) Render(username, targetURL string) (string, []domain.Button) {
	return fmt.Sprintf(m.Format, username), []domain.Button{{Label: m.Button, URL: targetURL}}
}
