package services

import (
	"context"
	"errors"
	"time"

	"pattibytes-express/db"

	"github.com/jackc/pgx/v5"
)

const (
	ThrottleRoleMerchantAdmin  = "merchant_admin"
	ThrottleCooldownCapSeconds = 30
)

// LoginThrottleWaitSeconds returns how long the user must wait before the
// next attempt, 0 when they may try now.
func LoginThrottleWaitSeconds(ctx context.Context, tgUserID int64, role string, now time.Time) (int, error) {
	var until *time.Time
	err := db.Pool.QueryRow(ctx, `
		SELECT cooldown_until FROM login_throttle WHERE tg_user_id = $1 AND role = $2`,
		tgUserID, role,
	).Scan(&until)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return waitSeconds(until, now), nil
}

func waitSeconds(until *time.Time, now time.Time) int {
	if until == nil || !now.Before(*until) {
		return 0
	}
	return int(until.Sub(now).Seconds()) + 1
}

// RecordLoginFailed bumps the failure count and starts a cooldown of
// CooldownSecondsForFailCount(count) seconds.
func RecordLoginFailed(ctx context.Context, tgUserID int64, role string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var failCount int
	err = tx.QueryRow(ctx, `
		INSERT INTO login_throttle (tg_user_id, role, fail_count, last_failed_at, updated_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (tg_user_id, role) DO UPDATE SET
			fail_count = login_throttle.fail_count + 1,
			last_failed_at = now(),
			updated_at = now()
		RETURNING fail_count`,
		tgUserID, role,
	).Scan(&failCount)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE login_throttle SET cooldown_until = now() + ($3::float8 * interval '1 second')
		WHERE tg_user_id = $1 AND role = $2`,
		tgUserID, role, CooldownSecondsForFailCount(failCount),
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func RecordLoginSuccess(ctx context.Context, tgUserID int64, role string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE login_throttle SET fail_count = 0, last_failed_at = NULL, cooldown_until = NULL, updated_at = now()
		WHERE tg_user_id = $1 AND role = $2`,
		tgUserID, role,
	)
	return err
}

// CooldownSecondsForFailCount is min(30, 2^failCount).
func CooldownSecondsForFailCount(failCount int) int {
	if failCount < 0 {
		failCount = 0
	}
	if failCount >= 5 {
		return ThrottleCooldownCapSeconds
	}
	return 1 << failCount
}
