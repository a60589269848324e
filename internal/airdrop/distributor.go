package airdrop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
	"github.com/DaddyBoye/helios-server-1/internal/notify"
)

// DefaultLimit is how many unclaimed airdrops a user may accumulate.
const DefaultLimit = 8

// Ledger is the subset of the store a distribution cycle touches.
type Ledger interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	InsertAirdrop(ctx context.Context, a domain.Airdrop) error
	UpdateAirdropTotals(ctx context.Context, telegramID int64, t domain.AirdropTotals) error
}

// Notifier is invoked for users at the limit.
type Notifier interface {
	MaybeNotify(ctx context.Context, telegramID int64, username string) notify.Outcome
}

// CycleReport summarises one distribution cycle.
type CycleReport struct {
	Users    int
	Credited int
	AtLimit  int
	Failed   int
	Duration time.Duration
}

// Distributor credits every user once per cycle.
type Distributor struct {
	ledger  Ledger
	gate    Notifier
	log     *zap.Logger
	limit   int
	workers int
	now     func() time.Time
}

// New creates a Distributor. limit and workers fall back to sane defaults when not positive.
func New(ledger Ledger, gate Notifier, log *zap.Logger, limit, workers int) *Distributor {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if workers <= 0 {
		workers = 1
	}
	return &Distributor{
		ledger:  ledger,
		gate:    gate,
		log:     log,
		limit:   limit,
		workers: workers,
		now:     time.Now,
	}
}

// RunCycle credits all users concurrently.
// A failure to list users aborts the cycle. Per-user failures do not affect
// other users; they are joined into the returned error next to the report.
func (d *Distributor) RunCycle(ctx context.Context) (CycleReport, error) {
	start := d.now()

	accounts, err := d.ledger.ListAccounts(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("list accounts: %w", err)
	}

	var credited, atLimit, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(d.workers).WithErrors()
	for _, acc := range accounts {
		p.Go(func() error {
			limited, err := d.distributeTo(ctx, acc)
			switch {
			case err != nil:
				failed.Add(1)
				d.log.Error("airdrop failed",
					zap.Int64("telegram_id", acc.TelegramID),
					zap.String("username", acc.Username),
					zap.Error(err),
				)
			case limited:
				atLimit.Add(1)
			default:
				credited.Add(1)
			}
			return err
		})
	}
	err = p.Wait()

	report := CycleReport{
		Users:    len(accounts),
		Credited: int(credited.Load()),
		AtLimit:  int(atLimit.Load()),
		Failed:   int(failed.Load()),
		Duration: d.now().Sub(start),
	}
	d.log.Info("distribution cycle finished",
		zap.Int("users", report.Users),
		zap.Int("credited", report.Credited),
		zap.Int("at_limit", report.AtLimit),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.Duration),
	)
	return report, err
}

// distributeTo applies the per-user policy. limited is true when the user was
// already at the limit and only the gate was consulted.
func (d *Distributor) distributeTo(ctx context.Context, acc domain.Account) (limited bool, err error) {
	if acc.AirdropClaimCount >= d.limit {
		d.log.Debug("airdrop limit reached",
			zap.Int64("telegram_id", acc.TelegramID),
			zap.Int("claim_count", acc.AirdropClaimCount),
		)
		d.gate.MaybeNotify(ctx, acc.TelegramID, acc.Username)
		return true, nil
	}

	ts, ok := domain.LocalTimestamp(d.now(), acc.Timezone)
	if !ok {
		d.log.Warn("unknown timezone, using UTC",
			zap.Int64("telegram_id", acc.TelegramID),
			zap.String("timezone", acc.Timezone),
		)
	}

	event := domain.Airdrop{
		TelegramID: acc.TelegramID,
		Value:      acc.Minerate,
		Username:   acc.Username,
		Timestamp:  ts,
	}
	if err := d.ledger.InsertAirdrop(ctx, event); err != nil {
		return false, fmt.Errorf("account %d: insert airdrop: %w", acc.TelegramID, err)
	}

	totals := acc.Credit(acc.Minerate)
	if totals.AirdropClaimCount == d.limit {
		d.gate.MaybeNotify(ctx, acc.TelegramID, acc.Username)
	}

	if err := d.ledger.UpdateAirdropTotals(ctx, acc.TelegramID, totals); err != nil {
		return false, fmt.Errorf("account %d: update totals: %w", acc.TelegramID, err)
	}
	return false, nil
}
