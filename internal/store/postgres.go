package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// PostgresRepo implements Repo on top of a pgx connection pool.
type PostgresRepo struct{ db *pgxpool.Pool }

// OpenPostgres connects to databaseURL, runs migrations and returns a repository.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepo, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	// Poolers in front of hosted Postgres break prepared statement caching.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return NewPostgresRepo(pool), nil
}

// NewPostgresRepo wraps an existing, already migrated pool. Close closes the pool.
func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Close() error {
	r.db.Close()
	return nil
}

func (r *PostgresRepo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `
        SELECT telegram_id, helios_username, timezone, minerate,
               airdrop_claim_count, total_airdrop_count, unclaimed_airdrop_total,
               last_notification_time, message_index
        FROM users
        ORDER BY telegram_id ASC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(
			&a.TelegramID, &a.Username, &a.Timezone, &a.Minerate,
			&a.AirdropClaimCount, &a.TotalAirdropCount, &a.UnclaimedAirdropTotal,
			&a.LastNotificationTime, &a.MessageIndex,
		); err != nil {
			return nil, err
		}
		a.LastNotificationTime = utcPtr(a.LastNotificationTime)
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r *PostgresRepo) InsertAirdrop(ctx context.Context, a domain.Airdrop) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO airdrops (telegram_id, value, helios_username, timestamp)
        VALUES ($1, $2, $3, $4)
    `, a.TelegramID, a.Value, a.Username, a.Timestamp)
	return err
}

func (r *PostgresRepo) UpdateAirdropTotals(ctx context.Context, telegramID int64, t domain.AirdropTotals) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE users
        SET unclaimed_airdrop_total = $1,
            total_airdrop_count = $2,
            airdrop_claim_count = $3
        WHERE telegram_id = $4
    `, t.UnclaimedAirdropTotal, t.TotalAirdropCount, t.AirdropClaimCount, telegramID)
	return checkTag(tag, err)
}

func (r *PostgresRepo) GetNotificationState(ctx context.Context, telegramID int64) (domain.NotificationState, error) {
	var s domain.NotificationState
	err := r.db.QueryRow(ctx, `
        SELECT last_notification_time, message_index
        FROM users
        WHERE telegram_id = $1
    `, telegramID).Scan(&s.LastNotificationTime, &s.MessageIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, domain.ErrNotFound
	}
	s.LastNotificationTime = utcPtr(s.LastNotificationTime)
	return s, err
}

func (r *PostgresRepo) SaveNotificationState(ctx context.Context, telegramID int64, s domain.NotificationState) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE users
        SET last_notification_time = $1, message_index = $2
        WHERE telegram_id = $3
    `, s.LastNotificationTime, s.MessageIndex, telegramID)
	return checkTag(tag, err)
}

func (r *PostgresRepo) SaveProgress(ctx context.Context, c domain.ProgressCheckpoint) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO progress_tracker (id, progress, last_updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET
            progress = EXCLUDED.progress,
            last_updated_at = EXCLUDED.last_updated_at
    `, domain.ProgressCheckpointID, c.Progress, c.LastUpdatedAt.UTC())
	return err
}

func (r *PostgresRepo) LoadProgress(ctx context.Context) (domain.ProgressCheckpoint, error) {
	var c domain.ProgressCheckpoint
	err := r.db.QueryRow(ctx, `
        SELECT progress, last_updated_at FROM progress_tracker WHERE id = $1
    `, domain.ProgressCheckpointID).Scan(&c.Progress, &c.LastUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, domain.ErrNotFound
	}
	c.LastUpdatedAt = c.LastUpdatedAt.UTC()
	return c, err
}

func (r *PostgresRepo) GetMinerate(ctx context.Context, telegramID int64) (float64, error) {
	var rate float64
	err := r.db.QueryRow(ctx, `SELECT minerate FROM users WHERE telegram_id = $1`, telegramID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return rate, err
}

func (r *PostgresRepo) IncreaseMinerate(ctx context.Context, telegramID int64, amount int) (float64, error) {
	var rate float64
	err := r.db.QueryRow(ctx, `
        UPDATE users SET minerate = minerate + $1
        WHERE telegram_id = $2
        RETURNING minerate
    `, amount, telegramID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return rate, err
}

func (r *PostgresRepo) SetReferralToken(ctx context.Context, telegramID int64, token string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET referral_token = $1 WHERE telegram_id = $2`, token, telegramID)
	return checkTag(tag, err)
}

func (r *PostgresRepo) ListReferrals(ctx context.Context, referrerID int64) ([]domain.Referral, error) {
	rows, err := r.db.Query(ctx, `
        SELECT r.referred_user_telegram_id, r.timestamp,
               COALESCE(u.telegram_username, ''), COALESCE(u.total_airdrops, 0),
               COALESCE(u.referral_count, 0), COALESCE(u.helios_username, ''),
               COALESCE(u.avatar_path, '')
        FROM referrals r
        LEFT JOIN users u ON u.telegram_id = r.referred_user_telegram_id
        WHERE r.referrer_telegram_id = $1
        ORDER BY r.timestamp ASC, r.id ASC
    `, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []domain.Referral{}
	for rows.Next() {
		var ref domain.Referral
		if err := rows.Scan(
			&ref.ReferredUserTelegramID, &ref.Timestamp,
			&ref.User.TelegramUsername, &ref.User.TotalAirdrops,
			&ref.User.ReferralCount, &ref.User.HeliosUsername, &ref.User.AvatarPath,
		); err != nil {
			return nil, err
		}
		ref.Timestamp = ref.Timestamp.UTC()
		res = append(res, ref)
	}
	return res, rows.Err()
}

func (r *PostgresRepo) GetReferrer(ctx context.Context, telegramID int64) (domain.Referrer, error) {
	var by *int64
	err := r.db.QueryRow(ctx, `SELECT referred_by FROM users WHERE telegram_id = $1`, telegramID).Scan(&by)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Referrer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Referrer{}, err
	}
	if by == nil || *by == 0 {
		return domain.Referrer{}, domain.ErrNoReferrer
	}

	var ref domain.Referrer
	err = r.db.QueryRow(ctx, `
        SELECT telegram_id, telegram_username FROM users WHERE telegram_id = $1
    `, *by).Scan(&ref.TelegramID, &ref.TelegramUsername)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Referrer{}, fmt.Errorf("referrer %d missing: %w", *by, domain.ErrNoReferrer)
	}
	return ref, err
}

func checkTag(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
