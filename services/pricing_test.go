package services

import (
	"testing"
	"time"

	"pattibytes-express/models"
)

func TestPriceOrder(t *testing.T) {
	items := []models.LineItem{
		{MenuItemID: "1", Name: "Thali", UnitPrice: 180, Qty: 2},
		{MenuItemID: "2", Name: "Lassi", UnitPrice: 45, Qty: 1},
	}
	tests := []struct {
		name     string
		discount int64
		fee      int64
		tax      int64
		want     Totals
	}{
		{"no extras", 0, 0, 0, Totals{Subtotal: 405, Total: 405}},
		{"tax rounded", 0, 30, 5, Totals{Subtotal: 405, DeliveryFee: 30, Tax: 20, Total: 455}},
		{"tax after discount", 100, 30, 5, Totals{Subtotal: 405, Discount: 100, DeliveryFee: 30, Tax: 15, Total: 350}},
		{"discount clamped", 999, 20, 0, Totals{Subtotal: 405, Discount: 405, DeliveryFee: 20, Total: 20}},
		{"negative inputs", -5, -10, 0, Totals{Subtotal: 405, Total: 405}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriceOrder(items, tt.discount, tt.fee, tt.tax)
			if got != tt.want {
				t.Errorf("PriceOrder = %+v, want %+v", got, tt.want)
			}
			if err := got.Check(); err != nil {
				t.Errorf("Check: %v", err)
			}
		})
	}
}

func TestTotalsCheck(t *testing.T) {
	bad := []Totals{
		{Subtotal: 100, Total: 90},
		{Subtotal: 100, Discount: 120, Total: -20},
		{Subtotal: 100, Tax: -1, Total: 99},
	}
	for _, tt := range bad {
		if err := tt.Check(); err == nil {
			t.Errorf("Check(%+v) = nil, want error", tt)
		}
	}
}

func TestTotalsApply(t *testing.T) {
	var o models.Order
	Totals{Subtotal: 200, Discount: 20, DeliveryFee: 25, Tax: 9, Total: 214}.Apply(&o)
	if o.Subtotal != 200 || o.Discount != 20 || o.DeliveryFee != 25 || o.Tax != 9 || o.Total != 214 {
		t.Errorf("Apply: %+v", o)
	}
}

func TestEstimateDeliveryAt(t *testing.T) {
	now := time.Date(2026, 5, 2, 19, 0, 0, 0, time.UTC)
	tests := []struct {
		km   float64
		want time.Duration
	}{
		{0, 25 * time.Minute},
		{0.4, 28 * time.Minute},
		{3, 34 * time.Minute},
		{3.2, 37 * time.Minute},
		{-1, 25 * time.Minute},
	}
	for _, tt := range tests {
		if got := EstimateDeliveryAt(now, tt.km).Sub(now); got != tt.want {
			t.Errorf("EstimateDeliveryAt(%v km) = +%v, want +%v", tt.km, got, tt.want)
		}
	}
}
