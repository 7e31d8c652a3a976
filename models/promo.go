package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PromoScopeGlobal   = "global"
	PromoScopeMerchant = "merchant"
	PromoScopeTargeted = "targeted"

	DealTypeCartDiscount = "cart_discount"
	DealTypeBxgy         = "bxgy"

	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"

	BxgySideBuy = "buy"
	BxgySideGet = "get"
)

// PromoCode is a promotional offer. Time-of-day bounds are "HH:MM" strings;
// StartTime/EndTime take precedence over ValidTimeStart/ValidTimeEnd.
type PromoCode struct {
	ID             uuid.UUID       `validate:"required"`
	Code           string          `validate:"required,max=40"`
	Scope          string          `validate:"oneof=global merchant targeted"`
	MerchantID     *int64          `validate:"required_if=Scope merchant"`
	CustomerID     *int64          `validate:"required_if=Scope targeted"`
	DealType       string          `validate:"oneof=cart_discount bxgy"`
	DiscountType   string          `validate:"omitempty,oneof=percentage fixed"`
	DiscountValue  decimal.Decimal `validate:"-"`
	MinOrder       *int64          `validate:"omitempty,gte=0"`
	MaxDiscount    *int64          `validate:"omitempty,gte=0"`
	BuyQty         int             `validate:"gte=0"`
	GetQty         int             `validate:"gte=0"`
	AutoApply      bool
	Priority       int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	ValidDays      []int `validate:"dive,min=1,max=7"`
	StartTime      *string
	EndTime        *string
	ValidTimeStart *string
	ValidTimeEnd   *string
}

// BxgyTarget is one buy/get side entry of a BXGY promo, naming either a
// menu item or a category.
type BxgyTarget struct {
	PromoID    uuid.UUID `validate:"required"`
	Side       string    `validate:"oneof=buy get"`
	MenuItemID *string   `validate:"required_without=CategoryID"`
	CategoryID *string   `validate:"required_without=MenuItemID"`
}

// OfferBadge is the short display label derived from an active promo.
type OfferBadge struct {
	PromoID     uuid.UUID `json:"promo_id"`
	Code        string    `json:"code"`
	DealType    string    `json:"deal_type"`
	Label       string    `json:"label"`
	Subtitle    string    `json:"subtitle,omitempty"`
	FocusItemID *string   `json:"focus_item_id,omitempty"`
	AutoApply   bool      `json:"auto_apply"`
}
