package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pattibytes-express/db"
	"pattibytes-express/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var ErrPromoNotApplicable = errors.New("promo code is not valid for this order")

const promoColumns = `
	id::text, code, scope, merchant_id, customer_id, deal_type, COALESCE(discount_type, ''),
	COALESCE(discount_value, 0)::text, min_order, max_discount, buy_qty, get_qty,
	auto_apply, priority, valid_from, valid_until, COALESCE(valid_days, '{}'),
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	to_char(valid_time_start, 'HH24:MI'), to_char(valid_time_end, 'HH24:MI')`

// promoVisibility matches promos usable at merchant $1 by customer $2.
const promoVisibility = `
	enabled
	AND (scope = 'global'
	  OR (scope = 'merchant' AND merchant_id = $1)
	  OR (scope = 'targeted' AND customer_id = $2 AND (merchant_id IS NULL OR merchant_id = $1)))`

func scanPromo(row pgx.Row) (*models.PromoCode, error) {
	var p models.PromoCode
	var id, value string
	var days []int32
	err := row.Scan(
		&id, &p.Code, &p.Scope, &p.MerchantID, &p.CustomerID, &p.DealType, &p.DiscountType,
		&value, &p.MinOrder, &p.MaxDiscount, &p.BuyQty, &p.GetQty,
		&p.AutoApply, &p.Priority, &p.ValidFrom, &p.ValidUntil, &days,
		&p.StartTime, &p.EndTime, &p.ValidTimeStart, &p.ValidTimeEnd,
	)
	if err != nil {
		return nil, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("promo id %q: %w", id, err)
	}
	if p.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("promo %s discount value %q: %w", p.Code, value, err)
	}
	for _, d := range days {
		p.ValidDays = append(p.ValidDays, int(d))
	}
	return &p, nil
}

// ListMerchantPromos returns the enabled promos visible at a merchant for a
// customer (customerID 0 for anonymous browsing). Rows failing validation are
// skipped so callers only see well-formed promos.
func ListMerchantPromos(ctx context.Context, merchantID, customerID int64) ([]models.PromoCode, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE `+promoVisibility+`
		ORDER BY priority DESC, code`,
		merchantID, customerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []models.PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			log.Printf("promo scan merchant_id=%d: %v", merchantID, err)
			continue
		}
		if err := ValidateRecord(p); err != nil {
			log.Printf("promo skipped code=%s: %v", p.Code, err)
			continue
		}
		promos = append(promos, *p)
	}
	return promos, rows.Err()
}

// FindPromoByCode loads a visible promo by its code (case-insensitive).
// Returns nil, nil if there is no such promo or the stored row is malformed.
func FindPromoByCode(ctx context.Context, code string, merchantID, customerID int64) (*models.PromoCode, error) {
	p, err := scanPromo(db.Pool.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE `+promoVisibility+`
		AND upper(code) = upper($3)`,
		merchantID, customerID, strings.TrimSpace(code),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := ValidateRecord(p); err != nil {
		log.Printf("promo skipped code=%s: %v", p.Code, err)
		return nil, nil
	}
	return p, nil
}

// ListBxgyTargets loads targets for the given promos keyed by promo id.
func ListBxgyTargets(ctx context.Context, promoIDs []uuid.UUID) (map[uuid.UUID][]models.BxgyTarget, error) {
	out := make(map[uuid.UUID][]models.BxgyTarget)
	if len(promoIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(promoIDs))
	for i, id := range promoIDs {
		ids[i] = id.String()
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT promo_id::text, side, menu_item_id, category_id
		FROM bxgy_targets
		WHERE promo_id = ANY($1::uuid[])
		ORDER BY promo_id, id`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t models.BxgyTarget
		var promoID string
		if err := rows.Scan(&promoID, &t.Side, &t.MenuItemID, &t.CategoryID); err != nil {
			return nil, err
		}
		if t.PromoID, err = uuid.Parse(promoID); err != nil {
			return nil, err
		}
		if err := ValidateRecord(&t); err != nil {
			log.Printf("bxgy target skipped promo_id=%s: %v", promoID, err)
			continue
		}
		out[t.PromoID] = append(out[t.PromoID], t)
	}
	return out, rows.Err()
}

// MerchantOfferBadge evaluates the merchant's promos at now and returns the
// single badge to display, or nil.
func MerchantOfferBadge(ctx context.Context, merchantID, customerID int64, now time.Time) (*models.OfferBadge, error) {
	promos, err := ListMerchantPromos(ctx, merchantID, customerID)
	if err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	active := ActivePromos(promos, now)
	if len(active) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	targets, err := ListBxgyTargets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list bxgy targets: %w", err)
	}
	items, err := ListMerchantMenu(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	return BestOfferBadge(active, targets, models.NewMenuIndex(items), now), nil
}
