package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// Runs against a disposable database when TEST_DATABASE_URL is set.
func TestPostgres_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	r, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	const id = int64(900000001)
	_, err = r.db.Exec(ctx, `DELETE FROM airdrops WHERE telegram_id = $1`, id)
	require.NoError(t, err)
	_, err = r.db.Exec(ctx, `DELETE FROM users WHERE telegram_id = $1`, id)
	require.NoError(t, err)
	_, err = r.db.Exec(ctx, `
        INSERT INTO users (telegram_id, helios_username, timezone, minerate, airdrop_claim_count)
        VALUES ($1, 'pg', 'UTC', 2, 7)`, id)
	require.NoError(t, err)

	ts := time.Date(2025, time.May, 5, 15, 30, 0, 0, time.UTC)
	require.NoError(t, r.InsertAirdrop(ctx, domain.Airdrop{TelegramID: id, Value: 2, Username: "pg", Timestamp: ts}))
	require.NoError(t, r.UpdateAirdropTotals(ctx, id, domain.AirdropTotals{UnclaimedAirdropTotal: 2, TotalAirdropCount: 1, AirdropClaimCount: 8}))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, r.SaveNotificationState(ctx, id, domain.NotificationState{LastNotificationTime: &now, MessageIndex: 1}))
	s, err := r.GetNotificationState(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, s.LastNotificationTime)
	assert.True(t, now.Equal(*s.LastNotificationTime))

	rate, err := r.IncreaseMinerate(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate)

	require.NoError(t, r.SaveProgress(ctx, domain.ProgressCheckpoint{Progress: 42, LastUpdatedAt: now}))
	c, err := r.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, c.Progress)

	_, err = r.GetReferrer(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNoReferrer)
}

func TestPostgres_RepoOverExistingPool(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, RunPostgresMigrations(ctx, pool))

	r := NewPostgresRepo(pool)
	t.Cleanup(func() { _ = r.Close() })

	_, err = r.GetMinerate(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
