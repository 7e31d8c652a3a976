package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"pattibytes-express/db"

	"github.com/jackc/pgx/v5"
)

// Driver is a delivery rider linked to a Telegram account.
type Driver struct {
	ID            int64
	TgUserID      int64
	ChatID        int64
	FullName      string
	Phone         string
	VehicleNumber string
	IsOnline      bool
}

const driverColumns = `
	id, tg_user_id, COALESCE(chat_id, 0),
	COALESCE(full_name, ''), COALESCE(phone, ''), COALESCE(vehicle_number, ''),
	is_online`

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	err := row.Scan(&d.ID, &d.TgUserID, &d.ChatID, &d.FullName, &d.Phone, &d.VehicleNumber, &d.IsOnline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// GetDriverByTgUserID returns nil, nil for unknown Telegram users.
func GetDriverByTgUserID(ctx context.Context, tgUserID int64) (*Driver, error) {
	return scanDriver(db.Pool.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE tg_user_id = $1`, tgUserID))
}

func GetDriverByID(ctx context.Context, id int64) (*Driver, error) {
	return scanDriver(db.Pool.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id))
}

// SetDriverOnline toggles availability and refreshes the chat the driver
// writes from.
func SetDriverOnline(ctx context.Context, driverID, chatID int64, online bool) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE drivers SET is_online = $1, chat_id = $2, updated_at = now() WHERE id = $3`,
		online, chatID, driverID,
	)
	return err
}

func UpdateDriverLocation(ctx context.Context, driverID int64, lat, lon float64) error {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return err
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO driver_locations (driver_id, lat, lon, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (driver_id) DO UPDATE SET lat = EXCLUDED.lat, lon = EXCLUDED.lon, updated_at = now()`,
		driverID, lat, lon,
	)
	return err
}

// ReadyOrder is an unassigned ready order offered to drivers.
type ReadyOrder struct {
	OrderID      int64
	MerchantName string
	PickupLat    float64
	PickupLon    float64
	DeliveryFee  int64
	Total        int64
	DistanceKm   float64 // driver to merchant
}

// ListReadyOrdersNear returns ready orders without a driver whose merchant is
// within radiusKm of the driver's last location (updated in the last five
// minutes), nearest first.
func ListReadyOrdersNear(ctx context.Context, driverID int64, radiusKm float64, limit int) ([]ReadyOrder, error) {
	if limit <= 0 {
		limit = 10
	}
	var lat, lon float64
	err := db.Pool.QueryRow(ctx, `
		SELECT lat, lon FROM driver_locations
		WHERE driver_id = $1 AND updated_at > now() - interval '5 minutes'`,
		driverID,
	).Scan(&lat, &lon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("driver %d has no recent location", driverID)
		}
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT o.id, m.name, m.lat, m.lon, o.delivery_fee, o.total
		FROM orders o
		JOIN merchants m ON m.id = o.merchant_id
		WHERE o.status = $1 AND o.driver_id IS NULL
		ORDER BY o.created_at`,
		OrderStatusReady,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReadyOrder
	for rows.Next() {
		var r ReadyOrder
		if err := rows.Scan(&r.OrderID, &r.MerchantName, &r.PickupLat, &r.PickupLon, &r.DeliveryFee, &r.Total); err != nil {
			return nil, err
		}
		r.DistanceKm = HaversineDistanceKm(lat, lon, r.PickupLat, r.PickupLon)
		if r.DistanceKm <= radiusKm {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
