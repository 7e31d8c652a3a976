package services

import (
	"context"
	"errors"
	"time"

	"pattibytes-express/db"
	"pattibytes-express/models"

	"github.com/jackc/pgx/v5"
)

var ErrMerchantNotFound = errors.New("merchant not found")

// GetMerchant returns nil, nil when the merchant does not exist or is inactive.
func GetMerchant(ctx context.Context, id int64) (*models.Merchant, error) {
	var m models.Merchant
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, lat, lon,
			to_char(opening_time, 'HH24:MI'), to_char(closing_time, 'HH24:MI'),
			COALESCE(chat_id, 0)
		FROM merchants
		WHERE id = $1 AND is_active = true`,
		id,
	).Scan(&m.ID, &m.Name, &m.Lat, &m.Lon, &m.OpeningTime, &m.ClosingTime, &m.ChatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// MerchantOpenState evaluates the merchant's hours at now.
func MerchantOpenState(m *models.Merchant, now time.Time) OpenState {
	return IsRestaurantOpen(m.OpeningTime, m.ClosingTime, now)
}
