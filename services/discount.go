package services

import (
	"sort"

	"pattibytes-express/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeDiscount returns the discount a promo grants on items. The promo is
// assumed active; the result never exceeds subtotal.
func ComputeDiscount(p *models.PromoCode, targets []models.BxgyTarget, items []models.LineItem, subtotal int64) int64 {
	var d int64
	switch p.DealType {
	case models.DealTypeCartDiscount:
		d = cartDiscount(p, subtotal)
	case models.DealTypeBxgy:
		d = bxgyDiscount(p, targets, items)
	}
	if d < 0 {
		return 0
	}
	if d > subtotal {
		return subtotal
	}
	return d
}

func cartDiscount(p *models.PromoCode, subtotal int64) int64 {
	if p.MinOrder != nil && subtotal < *p.MinOrder {
		return 0
	}
	var d int64
	switch p.DiscountType {
	case models.DiscountTypePercentage:
		d = decimal.NewFromInt(subtotal).Mul(p.DiscountValue).Div(hundred).Floor().IntPart()
	case models.DiscountTypeFixed:
		d = p.DiscountValue.Floor().IntPart()
	}
	if p.MaxDiscount != nil && *p.MaxDiscount > 0 && d > *p.MaxDiscount {
		d = *p.MaxDiscount
	}
	return d
}

type unit struct {
	menuItemID string
	categoryID string
	price      int64
}

func (u unit) matches(t models.BxgyTarget) bool {
	if t.MenuItemID != nil {
		return *t.MenuItemID == u.menuItemID
	}
	return t.CategoryID != nil && *t.CategoryID == u.categoryID
}

// bxgyDiscount repeatedly reserves buy_qty units for every buy target (most
// expensive first) and then up to get_qty of the cheapest matching get
// units, which become free. A unit is used at most once.
func bxgyDiscount(p *models.PromoCode, targets []models.BxgyTarget, items []models.LineItem) int64 {
	buy, get := SplitTargets(targets)
	if len(buy) == 0 || len(get) == 0 {
		return 0
	}
	buyQty, getQty := p.BuyQty, p.GetQty
	if buyQty < 1 {
		buyQty = 1
	}
	if getQty < 1 {
		getQty = 1
	}

	var units []unit
	for _, it := range items {
		for i := 0; i < it.Qty; i++ {
			units = append(units, unit{menuItemID: it.MenuItemID, categoryID: it.CategoryID, price: it.UnitPrice})
		}
	}
	sort.SliceStable(units, func(i, j int) bool { return units[i].price > units[j].price })
	used := make([]bool, len(units))

	var total int64
	for {
		reserved := make([]int, 0, len(buy)*buyQty)
		taken := func(i int) bool {
			if used[i] {
				return true
			}
			for _, r := range reserved {
				if r == i {
					return true
				}
			}
			return false
		}
		ok := true
		for _, t := range buy {
			need := buyQty
			for i := 0; i < len(units) && need > 0; i++ {
				if !taken(i) && units[i].matches(t) {
					reserved = append(reserved, i)
					need--
				}
			}
			if need > 0 {
				ok = false
				break
			}
		}
		if !ok {
			return total
		}

		var free []int
		for i := len(units) - 1; i >= 0 && len(free) < getQty; i-- {
			if taken(i) {
				continue
			}
			for _, t := range get {
				if units[i].matches(t) {
					free = append(free, i)
					break
				}
			}
		}
		if len(free) == 0 {
			return total
		}
		for _, i := range reserved {
			used[i] = true
		}
		for _, i := range free {
			used[i] = true
			total += units[i].price
		}
	}
}

// PromoDiscount computes the discount of a promo requested at checkout. An
// inactive promo or one granting nothing yields ErrPromoNotApplicable.
func PromoDiscount(p *models.PromoCode, targets []models.BxgyTarget, items []models.LineItem, subtotal int64, active bool) (int64, error) {
	if !active {
		return 0, ErrPromoNotApplicable
	}
	d := ComputeDiscount(p, targets, items, subtotal)
	if d == 0 {
		return 0, ErrPromoNotApplicable
	}
	return d, nil
}
