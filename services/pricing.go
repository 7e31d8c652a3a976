package services

import (
	"fmt"

	"pattibytes-express/models"

	"github.com/shopspring/decimal"
)

// Totals is the money breakdown of an order.
type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	Discount    int64 `json:"discount"`
	DeliveryFee int64 `json:"delivery_fee"`
	Tax         int64 `json:"tax"`
	Total       int64 `json:"total"`
}

func Subtotal(items []models.LineItem) int64 {
	var s int64
	for _, it := range items {
		s += it.UnitPrice * int64(it.Qty)
	}
	return s
}

// PriceOrder builds the totals of an order. Tax is charged on the discounted
// subtotal and rounded half away from zero.
func PriceOrder(items []models.LineItem, discount, deliveryFee, taxPercent int64) Totals {
	t := Totals{Subtotal: Subtotal(items), DeliveryFee: deliveryFee}
	if discount < 0 {
		discount = 0
	}
	if discount > t.Subtotal {
		discount = t.Subtotal
	}
	t.Discount = discount
	if t.DeliveryFee < 0 {
		t.DeliveryFee = 0
	}
	if taxPercent > 0 {
		t.Tax = decimal.NewFromInt(t.Subtotal - t.Discount).
			Mul(decimal.NewFromInt(taxPercent)).
			Div(hundred).
			Round(0).
			IntPart()
	}
	t.Total = t.Subtotal - t.Discount + t.DeliveryFee + t.Tax
	return t
}

// Check verifies total == subtotal - discount + deliveryFee + tax with every
// component non-negative.
func (t Totals) Check() error {
	if t.Subtotal < 0 || t.Discount < 0 || t.DeliveryFee < 0 || t.Tax < 0 {
		return fmt.Errorf("negative component in totals %+v", t)
	}
	if t.Discount > t.Subtotal {
		return fmt.Errorf("discount %d exceeds subtotal %d", t.Discount, t.Subtotal)
	}
	if want := t.Subtotal - t.Discount + t.DeliveryFee + t.Tax; t.Total != want {
		return fmt.Errorf("total %d, want %d", t.Total, want)
	}
	return nil
}

// Apply copies the totals onto an order.
func (t Totals) Apply(o *models.Order) {
	o.Subtotal = t.Subtotal
	o.Discount = t.Discount
	o.DeliveryFee = t.DeliveryFee
	o.Tax = t.Tax
	o.Total = t.Total
}
