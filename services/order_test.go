package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pattibytes-express/db"
)

// orderFixture is a merchant, a customer and some drivers that tests hang
// orders off. Everything is removed on cleanup.
type orderFixture struct {
	merchantID int64
	customerID int64
	driverIDs  []int64
	orderIDs   []int64
}

func newOrderFixture(t *testing.T, drivers int) *orderFixture {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UnixNano() % 1_000_000_000_000
	f := &orderFixture{}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO merchants (name, lat, lon, chat_id) VALUES ('Test Dhaba', 31.2, 74.9, $1) RETURNING id`,
		base,
	).Scan(&f.merchantID)
	if err != nil {
		t.Fatalf("insert merchant: %v", err)
	}
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO customers (tg_user_id, chat_id, name) VALUES ($1, $1, 'Test Customer') RETURNING id`,
		base+1,
	).Scan(&f.customerID)
	if err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	for i := 0; i < drivers; i++ {
		var id int64
		err := db.Pool.QueryRow(ctx, `
			INSERT INTO drivers (tg_user_id, chat_id, full_name, is_online) VALUES ($1, $1, 'Test Driver', true) RETURNING id`,
			base+2+int64(i),
		).Scan(&id)
		if err != nil {
			t.Fatalf("insert driver: %v", err)
		}
		f.driverIDs = append(f.driverIDs, id)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = db.Pool.Exec(ctx, `DELETE FROM orders WHERE merchant_id = $1`, f.merchantID)
		for _, id := range f.driverIDs {
			_, _ = db.Pool.Exec(ctx, `DELETE FROM drivers WHERE id = $1`, id)
		}
		_, _ = db.Pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, f.customerID)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM merchants WHERE id = $1`, f.merchantID)
	})
	return f
}

func (f *orderFixture) order(t *testing.T, status string) int64 {
	t.Helper()
	var id int64
	err := db.Pool.QueryRow(context.Background(), `
		INSERT INTO orders (customer_id, merchant_id, subtotal, delivery_fee, total, payment_method, status, address, lat, lon, distance_km)
		VALUES ($1, $2, 200, 25, 225, 'cod', $3, 'Main Bazaar, Patti', 31.21, 74.91, 1.4)
		RETURNING id`,
		f.customerID, f.merchantID, status,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	f.orderIDs = append(f.orderIDs, id)
	return id
}

func storedStatus(t *testing.T, orderID int64) (status string, driverID *int64) {
	t.Helper()
	err := db.Pool.QueryRow(context.Background(), `SELECT status, driver_id FROM orders WHERE id = $1`, orderID).
		Scan(&status, &driverID)
	if err != nil {
		t.Fatalf("read order %d: %v", orderID, err)
	}
	return status, driverID
}

func historyCount(t *testing.T, orderID int64) int {
	t.Helper()
	var n int
	if err := db.Pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM order_status_history WHERE order_id = $1`, orderID).Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	return n
}

func TestTransitionOrder_CustomerCancel(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	f := newOrderFixture(t, 0)
	customer := Actor{Role: RoleCustomer, ID: f.customerID}

	t.Run("pending can be cancelled", func(t *testing.T) {
		id := f.order(t, OrderStatusPending)
		o, err := TransitionOrder(ctx, id, OrderStatusCancelled, customer, "ordered twice", time.Now())
		if err != nil {
			t.Fatalf("TransitionOrder: %v", err)
		}
		if o.Status != OrderStatusCancelled || o.CancelledBy == nil || *o.CancelledBy != RoleCustomer {
			t.Errorf("returned order = status %s cancelled_by %v", o.Status, o.CancelledBy)
		}
		if got, _ := storedStatus(t, id); got != OrderStatusCancelled {
			t.Errorf("stored status = %s", got)
		}
		if n := historyCount(t, id); n != 1 {
			t.Errorf("history rows = %d, want 1", n)
		}
	})

	t.Run("preparing cannot be cancelled", func(t *testing.T) {
		id := f.order(t, OrderStatusPreparing)
		_, err := TransitionOrder(ctx, id, OrderStatusCancelled, customer, "too slow", time.Now())
		if !errors.Is(err, ErrNotPermitted) {
			t.Fatalf("err = %v, want ErrNotPermitted", err)
		}
		if got, _ := storedStatus(t, id); got != OrderStatusPreparing {
			t.Errorf("stored status = %s, want preparing", got)
		}
		if n := historyCount(t, id); n != 0 {
			t.Errorf("history rows = %d, want 0", n)
		}
	})

	t.Run("other customers cannot cancel", func(t *testing.T) {
		id := f.order(t, OrderStatusPending)
		_, err := TransitionOrder(ctx, id, OrderStatusCancelled, Actor{Role: RoleCustomer, ID: f.customerID + 1}, "mine", time.Now())
		if !errors.Is(err, ErrNotPermitted) {
			t.Fatalf("err = %v, want ErrNotPermitted", err)
		}
		if got, _ := storedStatus(t, id); got != OrderStatusPending {
			t.Errorf("stored status = %s", got)
		}
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := TransitionOrder(ctx, -1, OrderStatusCancelled, customer, "x", time.Now())
		if !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("err = %v, want ErrOrderNotFound", err)
		}
	})
}

func TestUpdateOrderStatus_StaleFromStatus(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	f := newOrderFixture(t, 0)
	id := f.order(t, OrderStatusConfirmed)

	o, err := GetOrder(ctx, id)
	if err != nil || o == nil {
		t.Fatalf("GetOrder = (%v, %v)", o, err)
	}
	o.Status = OrderStatusPreparing
	if err := updateOrderStatus(ctx, db.Pool, o, OrderStatusPending); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("err = %v, want ErrStatusConflict", err)
	}
	if got, _ := storedStatus(t, id); got != OrderStatusConfirmed {
		t.Errorf("stored status = %s, want confirmed", got)
	}

	if err := updateOrderStatus(ctx, db.Pool, o, OrderStatusConfirmed); err != nil {
		t.Fatalf("matching from: %v", err)
	}
	if got, _ := storedStatus(t, id); got != OrderStatusPreparing {
		t.Errorf("stored status = %s, want preparing", got)
	}
}

func TestTransitionOrder_EnqueueFailureKeepsTransition(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	f := newOrderFixture(t, 0)
	id := f.order(t, OrderStatusPending)

	calls := 0
	orig := enqueueOrderNotifications
	enqueueOrderNotifications = func(context.Context, int64, string, string, []string) error {
		calls++
		return errors.New("notifications table unavailable")
	}
	t.Cleanup(func() { enqueueOrderNotifications = orig })

	o, err := TransitionOrder(ctx, id, OrderStatusConfirmed, Actor{Role: RoleMerchant, ID: f.merchantID}, "", time.Now())
	if err != nil {
		t.Fatalf("TransitionOrder: %v", err)
	}
	if o.Status != OrderStatusConfirmed {
		t.Errorf("returned status = %s", o.Status)
	}
	if calls != 1 {
		t.Errorf("enqueue calls = %d, want 1", calls)
	}
	if got, _ := storedStatus(t, id); got != OrderStatusConfirmed {
		t.Errorf("stored status = %s, want confirmed", got)
	}
}

func TestAssignDriver_FirstDriverWins(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	f := newOrderFixture(t, 2)
	id := f.order(t, OrderStatusReady)

	errs := make([]error, len(f.driverIDs))
	var wg sync.WaitGroup
	for i, driverID := range f.driverIDs {
		wg.Add(1)
		go func(i int, driverID int64) {
			defer wg.Done()
			_, errs[i] = AssignDriver(ctx, id, driverID, Actor{Role: RoleDriver, ID: driverID})
		}(i, driverID)
	}
	wg.Wait()

	winner := int64(0)
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != 0 {
				t.Fatalf("both drivers assigned")
			}
			winner = f.driverIDs[i]
		case !errors.Is(err, ErrDriverAlreadyAssigned):
			t.Errorf("driver %d: err = %v, want ErrDriverAlreadyAssigned", f.driverIDs[i], err)
		}
	}
	if winner == 0 {
		t.Fatal("no driver assigned")
	}
	if _, driverID := storedStatus(t, id); driverID == nil || *driverID != winner {
		t.Errorf("stored driver = %v, want %d", driverID, winner)
	}
}

func TestAssignDriver_Rules(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	f := newOrderFixture(t, 2)
	d1, d2 := f.driverIDs[0], f.driverIDs[1]

	pending := f.order(t, OrderStatusPending)
	if _, err := AssignDriver(ctx, pending, d1, Actor{Role: RoleDriver, ID: d1}); !errors.Is(err, ErrOrderNotReady) {
		t.Errorf("pending order: err = %v, want ErrOrderNotReady", err)
	}

	ready := f.order(t, OrderStatusReady)
	if _, err := AssignDriver(ctx, ready, d2, Actor{Role: RoleDriver, ID: d1}); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("driver assigning someone else: err = %v, want ErrNotPermitted", err)
	}
	if _, err := AssignDriver(ctx, ready, d1, Actor{Role: RoleMerchant, ID: f.merchantID + 1}); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("foreign merchant: err = %v, want ErrNotPermitted", err)
	}
	o, err := AssignDriver(ctx, ready, d1, Actor{Role: RoleMerchant, ID: f.merchantID})
	if err != nil || o.DriverID == nil || *o.DriverID != d1 {
		t.Fatalf("merchant assigns: (%v, %v)", o, err)
	}

	// the assigned driver can now move the order along
	if _, err := TransitionOrder(ctx, ready, OrderStatusPickedUp, Actor{Role: RoleDriver, ID: d2}, "", time.Now()); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("unassigned driver pickup: err = %v, want ErrNotPermitted", err)
	}
	if _, err := TransitionOrder(ctx, ready, OrderStatusPickedUp, Actor{Role: RoleDriver, ID: d1}, "", time.Now()); err != nil {
		t.Errorf("assigned driver pickup: %v", err)
	}
}
