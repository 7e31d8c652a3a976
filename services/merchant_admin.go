package services

import (
	"context"
	"errors"
	"fmt"

	"pattibytes-express/db"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("wrong merchant id or password")

func HashMerchantPassword(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// SetMerchantPassword replaces the merchant's bot password and signs out
// everyone who logged in with the old one.
func SetMerchantPassword(ctx context.Context, merchantID int64, plain string) error {
	hash, err := HashMerchantPassword(plain)
	if err != nil {
		return err
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO merchant_admins (merchant_id, password_hash, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (merchant_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = now()`,
		merchantID, hash,
	)
	if err != nil {
		return fmt.Errorf("set merchant password merchant_id=%d: %w", merchantID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM merchant_admin_access WHERE merchant_id = $1`, merchantID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AuthenticateMerchantAdmin checks the password of a merchant. On success the
// Telegram user is recorded as acting for that merchant and its chat becomes
// the merchant's order chat.
func AuthenticateMerchantAdmin(ctx context.Context, tgUserID, chatID, merchantID int64, plain string) error {
	var hash string
	err := db.Pool.QueryRow(ctx, `SELECT password_hash FROM merchant_admins WHERE merchant_id = $1`, merchantID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBadCredentials
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) != nil {
		return ErrBadCredentials
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO merchant_admin_access (tg_user_id, merchant_id, logged_in_at)
		VALUES ($1, $2, now())
		ON CONFLICT (tg_user_id) DO UPDATE SET merchant_id = EXCLUDED.merchant_id, logged_in_at = now()`,
		tgUserID, merchantID,
	)
	if err != nil {
		return fmt.Errorf("record merchant admin access: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `UPDATE merchants SET chat_id = $1, updated_at = now() WHERE id = $2`, chatID, merchantID)
	return err
}

// MerchantForAdmin returns the merchant the Telegram user is logged in for,
// or 0.
func MerchantForAdmin(ctx context.Context, tgUserID int64) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `SELECT merchant_id FROM merchant_admin_access WHERE tg_user_id = $1`, tgUserID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

func LogoutMerchantAdmin(ctx context.Context, tgUserID int64) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM merchant_admin_access WHERE tg_user_id = $1`, tgUserID)
	return err
}

// TelegramActor works out who a Telegram user acts as: a logged-in merchant
// admin first, then a registered driver, then a customer with a linked
// account. ok is false for strangers.
func TelegramActor(ctx context.Context, tgUserID int64) (actor Actor, ok bool, err error) {
	merchantID, err := MerchantForAdmin(ctx, tgUserID)
	if err != nil {
		return Actor{}, false, err
	}
	if merchantID != 0 {
		return Actor{Role: RoleMerchant, ID: merchantID}, true, nil
	}
	d, err := GetDriverByTgUserID(ctx, tgUserID)
	if err != nil {
		return Actor{}, false, err
	}
	if d != nil {
		return Actor{Role: RoleDriver, ID: d.ID}, true, nil
	}
	var customerID int64
	err = db.Pool.QueryRow(ctx, `SELECT id FROM customers WHERE tg_user_id = $1`, tgUserID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, false, nil
		}
		return Actor{}, false, err
	}
	return Actor{Role: RoleCustomer, ID: customerID}, true, nil
}
