package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pattibytes-express/models"
)

// Callback data prefixes for order card buttons.
const (
	CallbackOrderStatus = "order_status" // order_status:<id>:<status>
	CallbackOrderCancel = "order_cancel" // order_cancel:<id>
	CallbackOrderTake   = "order_take"   // order_take:<id>
)

// OrderCardButton is one inline button (text + callback_data or url).
type OrderCardButton struct {
	Text         string
	CallbackData string
	URL          string
}

// OrderCardContent is the text and optional inline keyboard for an order card.
type OrderCardContent struct {
	Text    string
	Buttons [][]OrderCardButton
}

var statusLabels = map[string]string{
	OrderStatusPending:   "🕐 Waiting for the restaurant",
	OrderStatusConfirmed: "✅ Confirmed",
	OrderStatusPreparing: "👨‍🍳 Preparing",
	OrderStatusReady:     "📦 Ready for pickup",
	OrderStatusPickedUp:  "🛵 On the way",
	OrderStatusDelivered: "🎉 Delivered",
	OrderStatusCancelled: "❌ Cancelled",
}

var actionLabels = map[string]string{
	OrderStatusConfirmed: "✅ Confirm",
	OrderStatusPreparing: "👨‍🍳 Start preparing",
	OrderStatusReady:     "📦 Mark ready",
	OrderStatusPickedUp:  "🛵 Picked up",
	OrderStatusDelivered: "🎉 Delivered",
}

func StatusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

func statusButton(orderID int64, to string) OrderCardButton {
	return OrderCardButton{Text: actionLabels[to], CallbackData: fmt.Sprintf("%s:%d:%s", CallbackOrderStatus, orderID, to)}
}

func cancelButton(orderID int64) OrderCardButton {
	return OrderCardButton{Text: "❌ Cancel", CallbackData: fmt.Sprintf("%s:%d", CallbackOrderCancel, orderID)}
}

func writeItems(b *strings.Builder, o *models.Order) {
	for _, it := range o.Items {
		fmt.Fprintf(b, "%d × %s  %s\n", it.Qty, it.Name, formatRupees(it.UnitPrice*int64(it.Qty)))
	}
}

func writeTotals(b *strings.Builder, o *models.Order) {
	fmt.Fprintf(b, "\nSubtotal: %s\n", formatRupees(o.Subtotal))
	if o.Discount > 0 {
		code := ""
		if o.PromoCode != nil {
			code = " (" + *o.PromoCode + ")"
		}
		fmt.Fprintf(b, "Discount%s: -%s\n", code, formatRupees(o.Discount))
	}
	fmt.Fprintf(b, "Delivery (%.1f km): %s\n", o.DistanceKm, formatRupees(o.DeliveryFee))
	if o.Tax > 0 {
		fmt.Fprintf(b, "Tax: %s\n", formatRupees(o.Tax))
	}
	fmt.Fprintf(b, "Total: %s\n", formatRupees(o.Total))
}

func paymentLine(o *models.Order) string {
	method := "Cash on delivery"
	if o.PaymentMethod == models.PaymentMethodOnline {
		method = "Online"
	}
	return fmt.Sprintf("Payment: %s, %s", method, o.PaymentStatus)
}

func writeDriver(b *strings.Builder, d *Driver) {
	if d == nil {
		return
	}
	b.WriteString("\n🛵 Driver")
	if d.FullName != "" {
		b.WriteString(": " + d.FullName)
	}
	if d.Phone != "" {
		b.WriteString("\n📞 " + d.Phone)
	}
	if d.VehicleNumber != "" {
		b.WriteString("\n🚗 " + d.VehicleNumber)
	}
	b.WriteString("\n")
}

func writeCancellation(b *strings.Builder, o *models.Order) {
	if o.Status != OrderStatusCancelled || o.CancellationReason == nil {
		return
	}
	by := ""
	if o.CancelledBy != nil {
		by = " by " + *o.CancelledBy
	}
	fmt.Fprintf(b, "\nCancelled%s: %s\n", by, *o.CancellationReason)
}

// BuildMerchantCard shows the full order and the next step. While a driver
// holds a ready or picked-up order the progress buttons are left to them.
func BuildMerchantCard(o *models.Order, driver *Driver) OrderCardContent {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Order #%d\n\n", o.ID)
	writeItems(&b, o)
	writeTotals(&b, o)
	b.WriteString(paymentLine(o) + "\n")
	b.WriteString("📍 " + o.Address + "\n")
	writeDriver(&b, driver)
	if driver == nil && o.Status == OrderStatusReady {
		b.WriteString("\n⏳ Waiting for a driver\n")
	}
	writeCancellation(&b, o)
	b.WriteString("\nStatus: " + StatusLabel(o.Status))

	if IsTerminalStatus(o.Status) {
		return OrderCardContent{Text: b.String()}
	}
	var buttons [][]OrderCardButton
	driverHolds := o.DriverID != nil && (o.Status == OrderStatusReady || o.Status == OrderStatusPickedUp)
	if next := NextStatus(o.Status); next != "" && !driverHolds {
		buttons = append(buttons, []OrderCardButton{statusButton(o.ID, next)})
	}
	buttons = append(buttons, []OrderCardButton{cancelButton(o.ID)})
	return OrderCardContent{Text: b.String(), Buttons: buttons}
}

// BuildCustomerCard shows progress, the ETA and the driver once assigned.
// Customers can cancel until the restaurant starts preparing.
func BuildCustomerCard(o *models.Order, merchantName string, driver *Driver, loc *time.Location) OrderCardContent {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d from %s\n\n", o.ID, merchantName)
	writeItems(&b, o)
	writeTotals(&b, o)
	b.WriteString("\nStatus: " + StatusLabel(o.Status) + "\n")
	if !IsTerminalStatus(o.Status) && o.EstimatedDeliveryAt != nil {
		t := *o.EstimatedDeliveryAt
		if loc != nil {
			t = t.In(loc)
		}
		b.WriteString("Arriving around " + t.Format("3:04 PM") + "\n")
	}
	if o.Status == OrderStatusReady || o.Status == OrderStatusPickedUp {
		writeDriver(&b, driver)
	}
	writeCancellation(&b, o)

	var buttons [][]OrderCardButton
	if o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed {
		buttons = [][]OrderCardButton{{cancelButton(o.ID)}}
	}
	return OrderCardContent{Text: b.String(), Buttons: buttons}
}

// BuildDriverCard shows pickup and drop-off and the driver's next action.
func BuildDriverCard(o *models.Order, m *models.Merchant) OrderCardContent {
	var b strings.Builder
	fmt.Fprintf(&b, "🛵 Order #%d\n\n", o.ID)
	if m != nil {
		fmt.Fprintf(&b, "Pickup: %s\n", m.Name)
	}
	fmt.Fprintf(&b, "Drop-off: %s\n", o.Address)
	fmt.Fprintf(&b, "Distance: %.1f km\n", o.DistanceKm)
	if o.PaymentMethod == models.PaymentMethodCOD && o.PaymentStatus != models.PaymentStatusPaid {
		fmt.Fprintf(&b, "💵 Collect %s in cash\n", formatRupees(o.Total))
	}
	fmt.Fprintf(&b, "Delivery fee: %s\n", formatRupees(o.DeliveryFee))
	writeCancellation(&b, o)
	b.WriteString("\nStatus: " + StatusLabel(o.Status))

	var buttons [][]OrderCardButton
	switch o.Status {
	case OrderStatusReady:
		buttons = [][]OrderCardButton{{statusButton(o.ID, OrderStatusPickedUp)}}
	case OrderStatusPickedUp:
		buttons = [][]OrderCardButton{{statusButton(o.ID, OrderStatusDelivered)}}
	}
	return OrderCardContent{Text: b.String(), Buttons: buttons}
}

// BuildReadyOrderOffer is the message listing an unassigned order to a driver.
func BuildReadyOrderOffer(r ReadyOrder) OrderCardContent {
	text := fmt.Sprintf("📦 Order #%d at %s\n%.1f km away\nDelivery fee: %s\nOrder total: %s",
		r.OrderID, r.MerchantName, r.DistanceKm, formatRupees(r.DeliveryFee), formatRupees(r.Total))
	return OrderCardContent{
		Text:    text,
		Buttons: [][]OrderCardButton{{{Text: "✋ Take order", CallbackData: fmt.Sprintf("%s:%d", CallbackOrderTake, r.OrderID)}}},
	}
}

// BuildOrderCard loads what the audience's card needs and renders it.
func BuildOrderCard(ctx context.Context, o *models.Order, audience string, loc *time.Location) (OrderCardContent, error) {
	var driver *Driver
	if o.DriverID != nil {
		d, err := GetDriverByID(ctx, *o.DriverID)
		if err != nil {
			return OrderCardContent{}, err
		}
		driver = d
	}
	switch audience {
	case AudienceMerchant:
		return BuildMerchantCard(o, driver), nil
	case AudienceCustomer, AudienceDriver:
		m, err := GetMerchant(ctx, o.MerchantID)
		if err != nil {
			return OrderCardContent{}, err
		}
		if audience == AudienceDriver {
			return BuildDriverCard(o, m), nil
		}
		name := "the restaurant"
		if m != nil {
			name = m.Name
		}
		return BuildCustomerCard(o, name, driver, loc), nil
	}
	return OrderCardContent{}, fmt.Errorf("unknown audience %q", audience)
}
