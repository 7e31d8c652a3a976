package services

import (
	"context"
	"errors"
	"math"
	"sort"

	"pattibytes-express/db"
	"pattibytes-express/models"
)

const defaultRatePerKm = 10

var ErrInvalidCoordinates = errors.New("invalid coordinates")

// FeeQuote is the result of pricing delivery for one drop-off point.
type FeeQuote struct {
	Fee        int64   `json:"fee"`
	DistanceKm float64 `json:"distance_km"`
}

// ComputeDeliveryFee looks up the fee for distanceKm in the tier table. Tiers
// are evaluated in ascending max-distance order; the first tier covering the
// distance wins and anything beyond the table pays the last tier's fee.
// An empty table costs nothing.
func ComputeDeliveryFee(distanceKm float64, tiers []models.DeliveryFeeTier) (int64, float64) {
	if len(tiers) == 0 {
		return 0, distanceKm
	}
	sorted := make([]models.DeliveryFeeTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaxDistanceKm < sorted[j].MaxDistanceKm
	})
	for _, t := range sorted {
		if t.MaxDistanceKm >= distanceKm {
			return t.Fee, distanceKm
		}
	}
	return sorted[len(sorted)-1].Fee, distanceKm
}

// CalcDeliveryFee is the per-km fallback for merchants without a tier table.
func CalcDeliveryFee(distanceKm float64, ratePerKm int64) int64 {
	if ratePerKm == 0 {
		ratePerKm = defaultRatePerKm
	}
	rounded := math.Ceil(distanceKm*10) / 10
	return int64(math.Round(rounded * float64(ratePerKm)))
}

func HaversineDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return math.Round(R*c*100) / 100
}

// ValidateCoordinates rejects NaN, infinities, out-of-range values and the
// (0,0) placeholder that unset map pins produce.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	if lat == 0 && lon == 0 {
		return ErrInvalidCoordinates
	}
	return nil
}

// QuoteDeliveryFee prices delivery from merchant to (lat, lon).
func QuoteDeliveryFee(lat, lon float64, m *models.Merchant, tiers []models.DeliveryFeeTier, ratePerKm int64) (FeeQuote, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return FeeQuote{}, err
	}
	if err := ValidateCoordinates(m.Lat, m.Lon); err != nil {
		return FeeQuote{}, err
	}
	d := HaversineDistanceKm(m.Lat, m.Lon, lat, lon)
	if len(tiers) == 0 {
		return FeeQuote{Fee: CalcDeliveryFee(d, ratePerKm), DistanceKm: d}, nil
	}
	fee, d := ComputeDeliveryFee(d, tiers)
	return FeeQuote{Fee: fee, DistanceKm: d}, nil
}

// ListFeeTiers returns the merchant's tier table in ascending distance order.
func ListFeeTiers(ctx context.Context, merchantID int64) ([]models.DeliveryFeeTier, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT max_distance_km, fee FROM delivery_fee_tiers
		WHERE merchant_id = $1
		ORDER BY max_distance_km`,
		merchantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.DeliveryFeeTier
	for rows.Next() {
		var t models.DeliveryFeeTier
		if err := rows.Scan(&t.MaxDistanceKm, &t.Fee); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}
