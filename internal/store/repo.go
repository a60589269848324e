package store

import (
	"context"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// Repo defines storage operations for the airdrop ledger, notification state,
// progress checkpoints, referrals and mining rates.
type Repo interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	InsertAirdrop(ctx context.Context, a domain.Airdrop) error
	UpdateAirdropTotals(ctx context.Context, telegramID int64, t domain.AirdropTotals) error

	GetNotificationState(ctx context.Context, telegramID int64) (domain.NotificationState, error)
	SaveNotificationState(ctx context.Context, telegramID int64, s domain.NotificationState) error

	SaveProgress(ctx context.Context, c domain.ProgressCheckpoint) error
	LoadProgress(ctx context.Context) (domain.ProgressCheckpoint, error)

	GetMinerate(ctx context.Context, telegramID int64) (float64, error)
	IncreaseMinerate(ctx context.Context, telegramID int64, amount int) (float64, error)

	SetReferralToken(ctx context.Context, telegramID int64, token string) error
	ListReferrals(ctx context.Context, referrerID int64) ([]domain.Referral, error)
	GetReferrer(ctx context.Context, telegramID int64) (domain.Referrer, error)

	Close() error
}

var (
	_ Repo = (*SQLiteRepo)(nil)
	_ Repo = (*PostgresRepo)(nil)
)
