package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"pattibytes-express/db"
	"pattibytes-express/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrStatusConflict        = errors.New("order status changed concurrently")
	ErrOrderNotReady         = errors.New("order is not ready for pickup")
	ErrDriverAlreadyAssigned = errors.New("order already has a driver")
)

// CheckoutOptions carries the configuration CreateOrder needs.
type CheckoutOptions struct {
	RatePerKm  int64
	TaxPercent int64
	Now        time.Time // in the marketplace time zone
}

// enqueueOrderNotifications runs after an order change has committed. Its
// errors are logged only.
var enqueueOrderNotifications = EnqueueOrderNotifications

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `
	id, customer_id, merchant_id, subtotal, discount, delivery_fee, tax, total,
	payment_method, payment_status, status, address, lat, lon, distance_km,
	created_at, estimated_delivery_at, actual_delivery_at, promo_code, driver_id,
	cancellation_reason, cancelled_by`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.MerchantID, &o.Subtotal, &o.Discount, &o.DeliveryFee, &o.Tax, &o.Total,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.Address, &o.Lat, &o.Lon, &o.DistanceKm,
		&o.CreatedAt, &o.EstimatedDeliveryAt, &o.ActualDeliveryAt, &o.PromoCode, &o.DriverID,
		&o.CancellationReason, &o.CancelledBy)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func loadOrderItems(ctx context.Context, q queryer, o *models.Order) error {
	rows, err := q.Query(ctx, `
		SELECT menu_item_id, name, category_id, unit_price, qty, is_veg
		FROM order_items WHERE order_id = $1 ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	o.Items = o.Items[:0]
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.MenuItemID, &it.Name, &it.CategoryID, &it.UnitPrice, &it.Qty, &it.IsVeg); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// EstimateDeliveryAt allows 25 minutes of preparation plus 3 minutes per
// started kilometre.
func EstimateDeliveryAt(now time.Time, distanceKm float64) time.Time {
	km := math.Ceil(math.Max(distanceKm, 0))
	return now.Add(25*time.Minute + time.Duration(km)*3*time.Minute)
}

// checkoutPromo resolves the discount for an order: the customer's code if
// given, otherwise the best auto-applied offer that yields a discount.
func checkoutPromo(ctx context.Context, in *models.CreateOrderInput, items []models.LineItem, subtotal int64, now time.Time) (*string, int64, error) {
	code := strings.TrimSpace(in.PromoCode)
	if code != "" {
		p, err := FindPromoByCode(ctx, code, in.MerchantID, in.CustomerID)
		if err != nil {
			return nil, 0, err
		}
		if p == nil {
			return nil, 0, ErrPromoNotApplicable
		}
		targets, err := ListBxgyTargets(ctx, []uuid.UUID{p.ID})
		if err != nil {
			return nil, 0, err
		}
		d, err := PromoDiscount(p, targets[p.ID], items, subtotal, IsPromoActiveNow(p, now))
		if err != nil {
			return nil, 0, err
		}
		return &p.Code, d, nil
	}

	promos, err := ListMerchantPromos(ctx, in.MerchantID, in.CustomerID)
	if err != nil {
		return nil, 0, err
	}
	var auto []models.PromoCode
	for _, p := range ActivePromos(promos, now) {
		if p.AutoApply {
			auto = append(auto, p)
		}
	}
	if len(auto) == 0 {
		return nil, 0, nil
	}
	ids := make([]uuid.UUID, 0, len(auto))
	for _, p := range auto {
		ids = append(ids, p.ID)
	}
	targets, err := ListBxgyTargets(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	var applicable []models.PromoCode
	for _, p := range auto {
		if ComputeDiscount(&p, targets[p.ID], items, subtotal) > 0 {
			applicable = append(applicable, p)
		}
	}
	best := PickPromo(applicable, now)
	if best == nil {
		return nil, 0, nil
	}
	return &best.Code, ComputeDiscount(best, targets[best.ID], items, subtotal), nil
}

// CreateOrder prices a checkout against the merchant's current menu, fees
// and offers and stores it as pending.
func CreateOrder(ctx context.Context, in models.CreateOrderInput, opts CheckoutOptions) (*models.Order, error) {
	if err := ValidateRecord(&in); err != nil {
		return nil, err
	}
	m, err := GetMerchant(ctx, in.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("load merchant: %w", err)
	}
	if m == nil {
		return nil, ErrMerchantNotFound
	}
	if !MerchantOpenState(m, opts.Now).IsOpen {
		return nil, ErrRestaurantClosed
	}
	tiers, err := ListFeeTiers(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("load fee tiers: %w", err)
	}
	quote, err := QuoteDeliveryFee(in.Lat, in.Lon, m, tiers, opts.RatePerKm)
	if err != nil {
		return nil, err
	}
	items, err := ResolveLineItems(ctx, m.ID, in.Items)
	if err != nil {
		return nil, err
	}
	subtotal := Subtotal(items)
	promoCode, discount, err := checkoutPromo(ctx, &in, items, subtotal, opts.Now)
	if err != nil {
		return nil, err
	}
	totals := PriceOrder(items, discount, quote.Fee, opts.TaxPercent)
	if err := totals.Check(); err != nil {
		return nil, err
	}

	eta := EstimateDeliveryAt(opts.Now, quote.DistanceKm)
	o := &models.Order{
		CustomerID:          in.CustomerID,
		MerchantID:          m.ID,
		Items:               items,
		PaymentMethod:       in.PaymentMethod,
		PaymentStatus:       models.PaymentStatusPending,
		Status:              OrderStatusPending,
		Address:             strings.TrimSpace(in.Address),
		Lat:                 in.Lat,
		Lon:                 in.Lon,
		DistanceKm:          quote.DistanceKm,
		EstimatedDeliveryAt: &eta,
		PromoCode:           promoCode,
	}
	totals.Apply(o)

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			customer_id, merchant_id, subtotal, discount, delivery_fee, tax, total,
			payment_method, payment_status, status, address, lat, lon, distance_km,
			estimated_delivery_at, promo_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`,
		o.CustomerID, o.MerchantID, o.Subtotal, o.Discount, o.DeliveryFee, o.Tax, o.Total,
		o.PaymentMethod, o.PaymentStatus, o.Status, o.Address, o.Lat, o.Lon, o.DistanceKm,
		o.EstimatedDeliveryAt, o.PromoCode,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, menu_item_id, name, category_id, unit_price, qty, is_veg)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, it.MenuItemID, it.Name, it.CategoryID, it.UnitPrice, it.Qty, it.IsVeg,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := insertStatusHistory(ctx, tx, o.ID, "", OrderStatusPending, Actor{Role: RoleCustomer, ID: o.CustomerID}, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if err := enqueueOrderNotifications(ctx, o.ID, NotifyKindNewOrder, o.Status, []string{AudienceMerchant, AudienceCustomer}); err != nil {
		log.Printf("enqueue new order notifications order_id=%d: %v", o.ID, err)
	}
	return o, nil
}

func insertStatusHistory(ctx context.Context, tx pgx.Tx, orderID int64, from, to string, actor Actor, reason *string) error {
	var fromStatus *string
	if from != "" {
		fromStatus = &from
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_role, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, fromStatus, to, actor.Role, actor.ID, reason,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// GetOrder returns the order with its items, or nil, nil when not found.
func GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(db.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := loadOrderItems(ctx, db.Pool, o); err != nil {
		return nil, err
	}
	return o, nil
}

// CanView reports whether actor may read the order.
func CanView(o *models.Order, actor Actor) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleCustomer:
		return o.CustomerID == actor.ID
	case RoleMerchant:
		return o.MerchantID == actor.ID
	case RoleDriver:
		return o.DriverID != nil && *o.DriverID == actor.ID
	}
	return false
}

// ownsOrder is CanView for mutations; drivers are checked by CanTransition.
func ownsOrder(o *models.Order, actor Actor) bool {
	if actor.Role == RoleDriver {
		return true
	}
	return CanView(o, actor)
}

func listOrders(ctx context.Context, where string, args ...any) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := loadOrderItems(ctx, db.Pool, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListCustomerOrders returns the customer's most recent orders first.
func ListCustomerOrders(ctx context.Context, customerID int64, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return listOrders(ctx, `customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limit)
}

// ListMerchantActiveOrders returns the merchant's orders that are not yet
// delivered or cancelled, oldest first.
func ListMerchantActiveOrders(ctx context.Context, merchantID int64) ([]models.Order, error) {
	return listOrders(ctx, `merchant_id = $1 AND status NOT IN ($2, $3) ORDER BY created_at`,
		merchantID, OrderStatusDelivered, OrderStatusCancelled)
}

// TransitionOrder moves an order to a new status on behalf of actor. The row
// is locked for the check and the update only applies if the status did not
// change underneath. Notifications are queued after commit and a failure to
// queue them does not fail the transition.
func TransitionOrder(ctx context.Context, orderID int64, to string, actor Actor, reason string, now time.Time) (*models.Order, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if !ownsOrder(o, actor) {
		return nil, ErrNotPermitted
	}
	change, err := ApplyTransition(o, to, actor, reason, now)
	if err != nil {
		return nil, err
	}

	if err := updateOrderStatus(ctx, tx, o, change.From); err != nil {
		return nil, err
	}
	var histReason *string
	if change.Reason != "" {
		histReason = &change.Reason
	}
	if err := insertStatusHistory(ctx, tx, o.ID, change.From, change.To, actor, histReason); err != nil {
		return nil, err
	}
	if err := loadOrderItems(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if err := enqueueOrderNotifications(ctx, o.ID, NotifyKindStatus, o.Status, NotifyAudiences(o, change)); err != nil {
		log.Printf("enqueue status notifications order_id=%d status=%s: %v", o.ID, o.Status, err)
	}
	return o, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// updateOrderStatus writes o's status fields only if the stored status is
// still from; otherwise it returns ErrStatusConflict.
func updateOrderStatus(ctx context.Context, q execer, o *models.Order, from string) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders SET
			status = $1,
			payment_status = $2,
			actual_delivery_at = $3,
			cancellation_reason = $4,
			cancelled_by = $5,
			updated_at = now()
		WHERE id = $6 AND status = $7`,
		o.Status, o.PaymentStatus, o.ActualDeliveryAt, o.CancellationReason, o.CancelledBy,
		o.ID, from,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// GetStatusHistory returns the transitions of an order, oldest first.
func GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusHistoryEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT order_id, COALESCE(from_status, ''), to_status, actor_role, actor_id, reason, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StatusHistoryEntry
	for rows.Next() {
		var h models.StatusHistoryEntry
		if err := rows.Scan(&h.OrderID, &h.FromStatus, &h.ToStatus, &h.ActorRole, &h.ActorID, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AssignDriver attaches a driver to a ready order. Merchants and admins
// assign; a driver may only take the order for themselves. The first
// assignment wins.
func AssignDriver(ctx context.Context, orderID, driverID int64, actor Actor) (*models.Order, error) {
	o, err := GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	switch actor.Role {
	case RoleAdmin:
	case RoleMerchant:
		if o.MerchantID != actor.ID {
			return nil, ErrNotPermitted
		}
	case RoleDriver:
		if actor.ID != driverID {
			return nil, ErrNotPermitted
		}
	default:
		return nil, ErrNotPermitted
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE orders SET driver_id = $1, assigned_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3 AND driver_id IS NULL`,
		driverID, orderID, OrderStatusReady,
	)
	if err != nil {
		return nil, fmt.Errorf("assign driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		cur, err := GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, ErrOrderNotFound
		}
		if cur.DriverID != nil {
			return nil, ErrDriverAlreadyAssigned
		}
		return nil, ErrOrderNotReady
	}
	o.DriverID = &driverID

	if err := enqueueOrderNotifications(ctx, o.ID, NotifyKindDriverAssigned, o.Status, []string{AudienceDriver, AudienceCustomer}); err != nil {
		log.Printf("enqueue driver notifications order_id=%d driver_id=%d: %v", o.ID, driverID, err)
	}
	return o, nil
}

// GetDailyStats aggregates the orders placed on date (YYYY-MM-DD) in loc.
// Revenue only counts delivered orders.
func GetDailyStats(ctx context.Context, date string, loc *time.Location) (*models.DailyStats, error) {
	if loc == nil {
		loc = time.UTC
	}
	var s models.DailyStats
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*)::int,
			COUNT(*) FILTER (WHERE status = $3)::int,
			COUNT(*) FILTER (WHERE status = $4)::int,
			COALESCE(SUM(subtotal) FILTER (WHERE status = $3), 0)::bigint,
			COALESCE(SUM(discount) FILTER (WHERE status = $3), 0)::bigint,
			COALESCE(SUM(delivery_fee) FILTER (WHERE status = $3), 0)::bigint,
			COALESCE(SUM(tax) FILTER (WHERE status = $3), 0)::bigint,
			COALESCE(SUM(total) FILTER (WHERE status = $3), 0)::bigint
		FROM orders
		WHERE (created_at AT TIME ZONE $2::text)::date = $1::text::date`,
		date, loc.String(), OrderStatusDelivered, OrderStatusCancelled,
	).Scan(&s.OrdersCount, &s.DeliveredCount, &s.CancelledCount, &s.ItemsRevenue,
		&s.DiscountTotal, &s.DeliveryRevenue, &s.TaxTotal, &s.GrandRevenue)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
