package models

import "time"

const (
	PaymentMethodCOD    = "cod"
	PaymentMethodOnline = "online"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// LineItem is one ordered menu item, priced at checkout time.
type LineItem struct {
	MenuItemID string `json:"menu_item_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	CategoryID string `json:"category_id,omitempty"`
	UnitPrice  int64  `json:"unit_price" validate:"gte=0"`
	Qty        int    `json:"qty" validate:"gte=1"`
	IsVeg      bool   `json:"is_veg"`
}

// Order is a row from orders joined with its line items.
type Order struct {
	ID                  int64      `json:"id"`
	CustomerID          int64      `json:"customer_id"`
	MerchantID          int64      `json:"merchant_id"`
	Items               []LineItem `json:"items"`
	Subtotal            int64      `json:"subtotal"`
	Discount            int64      `json:"discount"`
	DeliveryFee         int64      `json:"delivery_fee"`
	Tax                 int64      `json:"tax"`
	Total               int64      `json:"total"`
	PaymentMethod       string     `json:"payment_method"`
	PaymentStatus       string     `json:"payment_status"`
	Status              string     `json:"status"`
	Address             string     `json:"address"`
	Lat                 float64    `json:"lat"`
	Lon                 float64    `json:"lon"`
	DistanceKm          float64    `json:"distance_km"`
	CreatedAt           time.Time  `json:"created_at"`
	EstimatedDeliveryAt *time.Time `json:"estimated_delivery_at,omitempty"`
	ActualDeliveryAt    *time.Time `json:"actual_delivery_at,omitempty"`
	PromoCode           *string    `json:"promo_code,omitempty"`
	DriverID            *int64     `json:"driver_id,omitempty"`
	CancellationReason  *string    `json:"cancellation_reason,omitempty"`
	CancelledBy         *string    `json:"cancelled_by,omitempty"`
}

// OrderItemInput is a requested menu item; price and name come from the menu.
type OrderItemInput struct {
	MenuItemID string `json:"menu_item_id" validate:"required"`
	Qty        int    `json:"qty" validate:"gte=1,lte=50"`
}

type CreateOrderInput struct {
	CustomerID    int64            `json:"-" validate:"gt=0"`
	MerchantID    int64            `json:"merchant_id" validate:"gt=0"`
	Items         []OrderItemInput `json:"items" validate:"required,min=1,max=100,dive"`
	PaymentMethod string           `json:"payment_method" validate:"required,oneof=cod online"`
	Address       string           `json:"address" validate:"required"`
	Lat           float64          `json:"lat"`
	Lon           float64          `json:"lon"`
	PromoCode     string           `json:"promo_code,omitempty"`
}

// StatusHistoryEntry is one row of order_status_history.
type StatusHistoryEntry struct {
	OrderID    int64
	FromStatus string
	ToStatus   string
	ActorRole  string
	ActorID    int64
	Reason     *string
	CreatedAt  time.Time
}

type DailyStats struct {
	OrdersCount     int
	DeliveredCount  int
	CancelledCount  int
	ItemsRevenue    int64
	DiscountTotal   int64
	DeliveryRevenue int64
	TaxTotal        int64
	GrandRevenue    int64
}
