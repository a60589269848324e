package domain

import "time"

// Account is a participant row as seen by the distribution and notification paths.
type Account struct {
	TelegramID            int64
	Username              string // display name snapshot
	Timezone              string // IANA name, may be empty or invalid
	Minerate              float64
	AirdropClaimCount     int
	TotalAirdropCount     int
	UnclaimedAirdropTotal float64
	LastNotificationTime  *time.Time // UTC, nullable
	MessageIndex          int
}

// Airdrop is an append-only ledger event.
type Airdrop struct {
	TelegramID int64
	Value      float64
	Username   string
	Timestamp  time.Time // recipient's local wall clock
}

// AirdropTotals are the three counters written back after a credit.
type AirdropTotals struct {
	UnclaimedAirdropTotal float64
	TotalAirdropCount     int
	AirdropClaimCount     int
}

// Credit returns the totals after one airdrop of value rate.
func (a Account) Credit(rate float64) AirdropTotals {
	return AirdropTotals{
		UnclaimedAirdropTotal: a.UnclaimedAirdropTotal + rate,
		TotalAirdropCount:     a.TotalAirdropCount + 1,
		AirdropClaimCount:     a.AirdropClaimCount + 1,
	}
}

// NotificationState is the per-user cooldown and sequence position.
type NotificationState struct {
	LastNotificationTime *time.Time
	MessageIndex         int
}

// ProgressCheckpoint is the persisted snapshot of the shared progress counter.
type ProgressCheckpoint struct {
	Progress      int
	LastUpdatedAt time.Time
}

// ProgressCheckpointID is the well-known row of the progress tracker.
const ProgressCheckpointID = 1

// Button is a single action attached to an outbound notification.
type Button struct {
	Label string
	URL   string
}
