package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/airdrop"
	"github.com/DaddyBoye/helios-server-1/internal/domain"
	"github.com/DaddyBoye/helios-server-1/internal/notify"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (c *recordingChannel) Send(_ context.Context, chatID int64, text string, _ []domain.Button) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		c.sent = make(map[int64][]string)
	}
	c.sent[chatID] = append(c.sent[chatID], text)
	return nil
}

func (c *recordingChannel) count(chatID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent[chatID])
}

func accountByID(t *testing.T, r *SQLiteRepo, id int64) domain.Account {
	t.Helper()
	accs, err := r.ListAccounts(context.Background())
	require.NoError(t, err)
	for _, a := range accs {
		if a.TelegramID == id {
			return a
		}
	}
	t.Fatalf("account %d not found", id)
	return domain.Account{}
}

func airdropCount(t *testing.T, r *SQLiteRepo, id int64) int {
	t.Helper()
	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM airdrops WHERE telegram_id = ?`, id).Scan(&n))
	return n
}

// A distribution cycle over real storage, with the real gate deciding notifications.
func TestSQLite_DistributionCycleWithGate(t *testing.T) {
	ctx := context.Background()
	r := openTestRepo(t)
	const (
		below    = int64(1) // claimCount 0
		crossing = int64(2) // claimCount 7
		atLimit  = int64(3) // claimCount 8
	)
	seedUser(t, r, below, "alice", "UTC", 10, 0)
	seedUser(t, r, crossing, "bob", "UTC", 10, 7)
	seedUser(t, r, atLimit, "carol", "UTC", 10, 8)

	ch := &recordingChannel{}
	gate := notify.NewGate(r, ch, zap.NewNop(), 24*time.Hour, "https://app.example")
	d := airdrop.New(r, gate, zap.NewNop(), airdrop.DefaultLimit, 4)

	report, err := d.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 2, report.Credited)
	assert.Equal(t, 1, report.AtLimit)
	assert.Zero(t, report.Failed)

	a := accountByID(t, r, below)
	assert.Equal(t, 1, a.AirdropClaimCount)
	assert.Equal(t, 1, a.TotalAirdropCount)
	assert.Equal(t, 10.0, a.UnclaimedAirdropTotal)
	assert.Equal(t, 1, airdropCount(t, r, below))
	assert.Zero(t, ch.count(below))
	assert.Zero(t, a.MessageIndex)

	b := accountByID(t, r, crossing)
	assert.Equal(t, 8, b.AirdropClaimCount)
	assert.Equal(t, 1, b.TotalAirdropCount)
	assert.Equal(t, 10.0, b.UnclaimedAirdropTotal)
	assert.Equal(t, 1, airdropCount(t, r, crossing))
	assert.Equal(t, 1, ch.count(crossing))
	assert.Equal(t, 1, b.MessageIndex)
	assert.NotNil(t, b.LastNotificationTime)

	c := accountByID(t, r, atLimit)
	assert.Equal(t, 8, c.AirdropClaimCount)
	assert.Zero(t, c.TotalAirdropCount)
	assert.Zero(t, c.UnclaimedAirdropTotal)
	assert.Zero(t, airdropCount(t, r, atLimit))
	assert.Equal(t, 1, ch.count(atLimit))
	assert.Equal(t, 1, c.MessageIndex)

	// The next cycle credits only the user below the limit; the others are in cooldown.
	report, err = d.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Credited)
	assert.Equal(t, 2, report.AtLimit)

	assert.Equal(t, 2, accountByID(t, r, below).AirdropClaimCount)
	b = accountByID(t, r, crossing)
	assert.Equal(t, 8, b.AirdropClaimCount)
	assert.Equal(t, 1, b.MessageIndex)
	assert.Equal(t, 1, airdropCount(t, r, crossing))
	assert.Equal(t, 1, ch.count(crossing))
	assert.Equal(t, 1, ch.count(atLimit))
}
