package services

import (
	"context"

	"pattibytes-express/db"
)

const (
	TrustLevelNew     = "new"
	TrustLevelTrusted = "trusted"
	TrustLevelNormal  = "normal"
	TrustLevelRisky   = "risky"
)

// TrustScore summarizes how reliably a customer completes orders.
type TrustScore struct {
	Score     int    `json:"score"` // 0-100
	Level     string `json:"level"`
	Completed int    `json:"completed"`
	Cancelled int    `json:"cancelled"`
}

// ComputeTrustScore derives the score from delivered orders and orders the
// customer cancelled. Fewer than three finished orders is "new".
func ComputeTrustScore(completed, cancelled int) TrustScore {
	ts := TrustScore{Completed: completed, Cancelled: cancelled}
	total := completed + cancelled
	if total == 0 {
		ts.Score = 100
		ts.Level = TrustLevelNew
		return ts
	}
	ts.Score = (completed*100 + total/2) / total
	switch {
	case total < 3:
		ts.Level = TrustLevelNew
	case ts.Score >= 90:
		ts.Level = TrustLevelTrusted
	case ts.Score < 60 && cancelled >= 2:
		ts.Level = TrustLevelRisky
	default:
		ts.Level = TrustLevelNormal
	}
	return ts
}

// CustomerTrust counts the customer's delivered and self-cancelled orders.
func CustomerTrust(ctx context.Context, customerID int64) (TrustScore, error) {
	var completed, cancelled int
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2)::int,
			COUNT(*) FILTER (WHERE status = $3 AND cancelled_by = $4)::int
		FROM orders
		WHERE customer_id = $1`,
		customerID, OrderStatusDelivered, OrderStatusCancelled, RoleCustomer,
	).Scan(&completed, &cancelled)
	if err != nil {
		return TrustScore{}, err
	}
	return ComputeTrustScore(completed, cancelled), nil
}
