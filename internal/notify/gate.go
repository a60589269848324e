package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// StateStore reads and writes the per-user notification state.
type StateStore interface {
	GetNotificationState(ctx context.Context, telegramID int64) (domain.NotificationState, error)
	SaveNotificationState(ctx context.Context, telegramID int64, s domain.NotificationState) error
}

// Channel delivers a text with buttons to a chat.
// A recipient that can never be reached returns an error wrapping domain.ErrRecipientBlocked.
type Channel interface {
	Send(ctx context.Context, chatID int64, text string, buttons []domain.Button) error
}

// Outcome describes what a MaybeNotify call did.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeCooldown
	OutcomeExhausted
	OutcomeBlocked
	OutcomeSendFailed
	OutcomeStateUnavailable
	OutcomeSaveFailed
	OutcomeInFlight
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeStateUnavailable:
		return "state_unavailable"
	case OutcomeSaveFailed:
		return "save_failed"
	case OutcomeInFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// Gate decides whether a user at the airdrop limit gets the next reminder.
type Gate struct {
	store     StateStore
	channel   Channel
	log       *zap.Logger
	cooldown  time.Duration
	targetURL string
	messages  []Message
	now       func() time.Time

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewGate creates a Gate using the default Sequence.
func NewGate(store StateStore, channel Channel, log *zap.Logger, cooldown time.Duration, targetURL string) *Gate {
	return &Gate{
		store:     store,
		channel:   channel,
		log:       log,
		cooldown:  cooldown,
		targetURL: targetURL,
		messages:  Sequence,
		now:       time.Now,
		inflight:  make(map[int64]struct{}),
	}
}

// MaybeNotify sends the next message in the sequence if the cooldown has elapsed.
// It never fails the caller; every problem is logged and reported as an Outcome.
func (g *Gate) MaybeNotify(ctx context.Context, telegramID int64, username string) Outcome {
	if !g.acquire(telegramID) {
		return OutcomeInFlight
	}
	defer g.release(telegramID)

	log := g.log.With(zap.Int64("telegram_id", telegramID))

	st, err := g.store.GetNotificationState(ctx, telegramID)
	if err != nil {
		log.Error("read notification state failed", zap.Error(err))
		return OutcomeStateUnavailable
	}

	now := g.now().UTC()
	if !domain.CooldownElapsed(now, st.LastNotificationTime, g.cooldown) {
		log.Debug("notification cooldown active")
		return OutcomeCooldown
	}
	if st.MessageIndex < 0 || st.MessageIndex >= len(g.messages) {
		log.Debug("notification sequence exhausted", zap.Int("message_index", st.MessageIndex))
		return OutcomeExhausted
	}

	text, buttons := g.messages[st.MessageIndex].Render(username, g.targetURL)
	if err := g.channel.Send(ctx, telegramID, text, buttons); err != nil {
		if errors.Is(err, domain.ErrRecipientBlocked) {
			log.Warn("recipient blocked the bot", zap.Error(err))
			return OutcomeBlocked
		}
		log.Error("send notification failed", zap.Error(err))
		return OutcomeSendFailed
	}

	next := domain.NotificationState{LastNotificationTime: &now, MessageIndex: st.MessageIndex + 1}
	if err := g.store.SaveNotificationState(ctx, telegramID, next); err != nil {
		log.Error("save notification state failed", zap.Error(err))
		return OutcomeSaveFailed
	}
	log.Info("notification sent", zap.Int("message_index", st.MessageIndex))
	return OutcomeSent
}

func (g *Gate) acquire(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[id]; busy {
		return false
	}
	g.inflight[id] = struct{}{}
	return true
}

func (g *Gate) release(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, id)
}
