package services

import (
	"errors"
	"strings"
	"time"

	"pattibytes-express/models"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusPickedUp  = "picked_up"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
	RoleDriver   = "driver"
)

var (
	ErrUnknownStatus  = errors.New("unknown order status")
	ErrTerminalStatus = errors.New("order is already delivered or cancelled")
	ErrSameStatus     = errors.New("order already has this status")
	ErrNotPermitted   = errors.New("status change not permitted for this actor")
	ErrReasonRequired = errors.New("cancellation reason is required")
)

// forwardStatuses is the required order of the lifecycle; cancelled sits outside it.
var forwardStatuses = []string{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusPickedUp,
	OrderStatusDelivered,
}

// Actor is whoever requests a status change.
type Actor struct {
	Role string
	ID   int64
}

// StatusChange describes a transition applied to an order.
type StatusChange struct {
	OrderID int64
	From    string
	To      string
	Actor   Actor
	Reason  string
	At      time.Time
	// PaymentSettled is set when a cash-on-delivery order became paid.
	PaymentSettled bool
}

// StatusIndex returns the position of status in the forward sequence, or -1.
func StatusIndex(status string) int {
	for i, s := range forwardStatuses {
		if s == status {
			return i
		}
	}
	return -1
}

func IsKnownStatus(status string) bool {
	return status == OrderStatusCancelled || StatusIndex(status) >= 0
}

func IsTerminalStatus(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}

// ValidStatusTransition reports whether from -> to is one forward step or a
// cancellation of a live order. It is the path the merchant card offers.
func ValidStatusTransition(from, to string) bool {
	if !IsKnownStatus(from) || !IsKnownStatus(to) || IsTerminalStatus(from) {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	return StatusIndex(to) == StatusIndex(from)+1
}

// NextStatus returns the next forward status, or "" for ready (driver pickup)
// and terminal states.
func NextStatus(status string) string {
	i := StatusIndex(status)
	if i < 0 || status == OrderStatusReady || IsTerminalStatus(status) {
		return ""
	}
	return forwardStatuses[i+1]
}

// CanTransition checks the actor rules without touching the order.
func CanTransition(o *models.Order, to string, actor Actor) error {
	if !IsKnownStatus(to) || !IsKnownStatus(o.Status) {
		return ErrUnknownStatus
	}
	if IsTerminalStatus(o.Status) {
		return ErrTerminalStatus
	}
	if o.Status == to {
		return ErrSameStatus
	}
	switch actor.Role {
	case RoleMerchant, RoleAdmin:
		return nil
	case RoleCustomer:
		if to != OrderStatusCancelled {
			return ErrNotPermitted
		}
		if o.Status != OrderStatusPending && o.Status != OrderStatusConfirmed {
			return ErrNotPermitted
		}
		return nil
	case RoleDriver:
		if o.DriverID == nil || *o.DriverID != actor.ID {
			return ErrNotPermitted
		}
		if (o.Status == OrderStatusReady && to == OrderStatusPickedUp) ||
			(o.Status == OrderStatusPickedUp && to == OrderStatusDelivered) {
			return nil
		}
		return ErrNotPermitted
	default:
		return ErrNotPermitted
	}
}

// ApplyTransition validates the change and applies it to o in memory.
// On error o is left untouched.
func ApplyTransition(o *models.Order, to string, actor Actor, reason string, now time.Time) (StatusChange, error) {
	if err := CanTransition(o, to, actor); err != nil {
		return StatusChange{}, err
	}
	reason = strings.TrimSpace(reason)
	if to == OrderStatusCancelled && reason == "" {
		return StatusChange{}, ErrReasonRequired
	}

	change := StatusChange{
		OrderID: o.ID,
		From:    o.Status,
		To:      to,
		Actor:   actor,
		At:      now,
	}
	o.Status = to
	switch to {
	case OrderStatusDelivered:
		at := now
		o.ActualDeliveryAt = &at
		if o.PaymentMethod == models.PaymentMethodCOD && o.PaymentStatus != models.PaymentStatusPaid {
			o.PaymentStatus = models.PaymentStatusPaid
			change.PaymentSettled = true
		}
	case OrderStatusCancelled:
		role := actor.Role
		o.CancellationReason = &reason
		o.CancelledBy = &role
		change.Reason = reason
	}
	return change, nil
}
