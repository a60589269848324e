package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// ListAccounts returns every participant with the fields a distribution cycle needs.
func (r *SQLiteRepo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT telegram_id, helios_username, timezone, minerate,
		       airdrop_claim_count, total_airdrop_count, unclaimed_airdrop_total,
		       last_notification_time, message_index
		FROM users
		ORDER BY telegram_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Account
	for rows.Next() {
		var (
			a      domain.Account
			lastNS sql.NullInt64
		)
		if err := rows.Scan(
			&a.TelegramID, &a.Username, &a.Timezone, &a.Minerate,
			&a.AirdropClaimCount, &a.TotalAirdropCount, &a.UnclaimedAirdropTotal,
			&lastNS, &a.MessageIndex,
		); err != nil {
			return nil, err
		}
		a.LastNotificationTime = fromNullInt64(lastNS)
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// InsertAirdrop appends one event to the airdrop ledger.
func (r *SQLiteRepo) InsertAirdrop(ctx context.Context, a domain.Airdrop) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO airdrops (telegram_id, value, helios_username, timestamp)
		VALUES (?, ?, ?, ?)`,
		a.TelegramID, a.Value, a.Username, a.Timestamp.Format(airdropTimeLayout),
	)
	return err
}

// UpdateAirdropTotals overwrites the three airdrop counters of a user.
func (r *SQLiteRepo) UpdateAirdropTotals(ctx context.Context, telegramID int64, t domain.AirdropTotals) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET unclaimed_airdrop_total = ?, total_airdrop_count = ?, airdrop_claim_count = ?
		WHERE telegram_id = ?`,
		t.UnclaimedAirdropTotal, t.TotalAirdropCount, t.AirdropClaimCount, telegramID,
	)
	return checkAffected(res, err)
}

// GetNotificationState reads the cooldown timestamp and sequence position of a user.
func (r *SQLiteRepo) GetNotificationState(ctx context.Context, telegramID int64) (domain.NotificationState, error) {
	var (
		s      domain.NotificationState
		lastNS sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT last_notification_time, message_index
		FROM users
		WHERE telegram_id = ?`,
		telegramID,
	).Scan(&lastNS, &s.MessageIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return s, domain.ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.LastNotificationTime = fromNullInt64(lastNS)
	return s, nil
}

// SaveNotificationState persists the cooldown timestamp and sequence position of a user.
func (r *SQLiteRepo) SaveNotificationState(ctx context.Context, telegramID int64, s domain.NotificationState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_notification_time = ?, message_index = ?
		WHERE telegram_id = ?`,
		toNullInt64(s.LastNotificationTime), s.MessageIndex, telegramID,
	)
	return checkAffected(res, err)
}

// SaveProgress upserts the single progress checkpoint row.
func (r *SQLiteRepo) SaveProgress(ctx context.Context, c domain.ProgressCheckpoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO progress_tracker (id, progress, last_updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			progress        = excluded.progress,
			last_updated_at = excluded.last_updated_at`,
		domain.ProgressCheckpointID, c.Progress, c.LastUpdatedAt.UTC().Unix(),
	)
	return err
}

// LoadProgress returns the last checkpoint or domain.ErrNotFound if none was written.
func (r *SQLiteRepo) LoadProgress(ctx context.Context) (domain.ProgressCheckpoint, error) {
	var (
		c       domain.ProgressCheckpoint
		updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT progress, last_updated_at
		FROM progress_tracker
		WHERE id = ?`,
		domain.ProgressCheckpointID,
	).Scan(&c.Progress, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.LastUpdatedAt = time.Unix(updated, 0).UTC()
	return c, nil
}

// GetMinerate returns the per-cycle airdrop rate of a user.
func (r *SQLiteRepo) GetMinerate(ctx context.Context, telegramID int64) (float64, error) {
	var rate float64
	err := r.db.QueryRowContext(ctx, `SELECT minerate FROM users WHERE telegram_id = ?`, telegramID).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return rate, err
}

// IncreaseMinerate adds amount to the user's rate and returns the new value.
func (r *SQLiteRepo) IncreaseMinerate(ctx context.Context, telegramID int64, amount int) (float64, error) {
	var rate float64
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET minerate = minerate + ?
		WHERE telegram_id = ?
		RETURNING minerate`,
		amount, telegramID,
	).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return rate, err
}

// SetReferralToken stores the token other users join with.
func (r *SQLiteRepo) SetReferralToken(ctx context.Context, telegramID int64, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET referral_token = ? WHERE telegram_id = ?`, token, telegramID)
	return checkAffected(res, err)
}

// ListReferrals returns everyone referred by referrerID, oldest first.
func (r *SQLiteRepo) ListReferrals(ctx context.Context, referrerID int64) ([]domain.Referral, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.referred_user_telegram_id, r.timestamp,
		       COALESCE(u.telegram_username, ''), COALESCE(u.total_airdrops, 0),
		       COALESCE(u.referral_count, 0), COALESCE(u.helios_username, ''),
		       COALESCE(u.avatar_path, '')
		FROM referrals r
		LEFT JOIN users u ON u.telegram_id = r.referred_user_telegram_id
		WHERE r.referrer_telegram_id = ?
		ORDER BY r.timestamp ASC, r.id ASC`,
		referrerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []domain.Referral{}
	for rows.Next() {
		var (
			ref domain.Referral
			ts  int64
		)
		if err := rows.Scan(
			&ref.ReferredUserTelegramID, &ts,
			&ref.User.TelegramUsername, &ref.User.TotalAirdrops,
			&ref.User.ReferralCount, &ref.User.HeliosUsername, &ref.User.AvatarPath,
		); err != nil {
			return nil, err
		}
		ref.Timestamp = time.Unix(ts, 0).UTC()
		res = append(res, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetReferrer resolves who referred telegramID.
// Returns domain.ErrNotFound for an unknown user and domain.ErrNoReferrer when nobody did.
func (r *SQLiteRepo) GetReferrer(ctx context.Context, telegramID int64) (domain.Referrer, error) {
	var by sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT referred_by FROM users WHERE telegram_id = ?`, telegramID).Scan(&by)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Referrer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Referrer{}, err
	}
	if !by.Valid || by.Int64 == 0 {
		return domain.Referrer{}, domain.ErrNoReferrer
	}

	var ref domain.Referrer
	err = r.db.QueryRowContext(ctx, `
		SELECT telegram_id, telegram_username
		FROM users
		WHERE telegram_id = ?`,
		by.Int64,
	).Scan(&ref.TelegramID, &ref.TelegramUsername)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Referrer{}, fmt.Errorf("referrer %d missing: %w", by.Int64, domain.ErrNoReferrer)
	}
	return ref, err
}

// checkAffected maps an update that touched no rows to domain.ErrNotFound.
func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
