package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"pattibytes-express/models"

	"github.com/google/uuid"
)

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
// ok is false for anything else; callers treat that as "no restriction".
func ParseClock(s string) (minutes int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, false
		}
	}
	return h*60 + m, true
}

// IsoWeekday maps t's weekday to Monday=1 ... Sunday=7.
func IsoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func firstSet(a, b *string) *string {
	if a != nil && strings.TrimSpace(*a) != "" {
		return a
	}
	if b != nil && strings.TrimSpace(*b) != "" {
		return b
	}
	return nil
}

// PromoTimeWindow resolves the promo's time-of-day bounds; start_time/end_time
// win over valid_time_start/valid_time_end.
func PromoTimeWindow(p *models.PromoCode) (start, end *string) {
	return firstSet(p.StartTime, p.ValidTimeStart), firstSet(p.EndTime, p.ValidTimeEnd)
}

// InClockWindow reports whether now falls inside [start, end]. A window with
// start > end crosses midnight. Missing or malformed bounds do not restrict.
func InClockWindow(start, end *string, now time.Time) bool {
	cur := minutesOfDay(now)
	var s, e int
	var hasStart, hasEnd bool
	if start != nil {
		s, hasStart = ParseClock(*start)
	}
	if end != nil {
		e, hasEnd = ParseClock(*end)
	}
	switch {
	case !hasStart && !hasEnd:
		return true
	case hasStart && !hasEnd:
		return cur >= s
	case !hasStart && hasEnd:
		return cur <= e
	case s <= e:
		return cur >= s && cur <= e
	default:
		return cur >= s || cur <= e
	}
}

// IsPromoActiveNow checks the validity range, weekday list and time-of-day
// window. All must pass.
func IsPromoActiveNow(p *models.PromoCode, now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	if len(p.ValidDays) > 0 {
		today := IsoWeekday(now)
		found := false
		for _, d := range p.ValidDays {
			if d == today {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	start, end := PromoTimeWindow(p)
	return InClockWindow(start, end, now)
}

// promoOutranks orders promos for badge selection: higher priority, then
// earlier valid_from (open-ended first), then code.
func promoOutranks(a, b *models.PromoCode) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch {
	case a.ValidFrom == nil && b.ValidFrom != nil:
		return true
	case a.ValidFrom != nil && b.ValidFrom == nil:
		return false
	case a.ValidFrom != nil && b.ValidFrom != nil && !a.ValidFrom.Equal(*b.ValidFrom):
		return a.ValidFrom.Before(*b.ValidFrom)
	}
	return a.Code < b.Code
}

// PickPromo returns the single winning promo among those active at now, or nil.
func PickPromo(promos []models.PromoCode, now time.Time) *models.PromoCode {
	var best *models.PromoCode
	for i := range promos {
		p := &promos[i]
		if !IsPromoActiveNow(p, now) {
			continue
		}
		if best == nil || promoOutranks(p, best) {
			best = p
		}
	}
	return best
}

// SplitTargets partitions BXGY targets by side, keeping their order.
func SplitTargets(targets []models.BxgyTarget) (buy, get []models.BxgyTarget) {
	for _, t := range targets {
		switch t.Side {
		case models.BxgySideBuy:
			buy = append(buy, t)
		case models.BxgySideGet:
			get = append(get, t)
		}
	}
	return buy, get
}

func formatRupees(v int64) string {
	return "₹" + strconv.FormatInt(v, 10)
}

func targetName(t models.BxgyTarget, menu models.MenuIndex) string {
	if t.MenuItemID != nil {
		if name, ok := menu.Items[*t.MenuItemID]; ok {
			return name
		}
		return "item"
	}
	if t.CategoryID != nil {
		if name, ok := menu.Categories[*t.CategoryID]; ok {
			return "any " + name
		}
	}
	return "any item"
}

func targetNames(ts []models.BxgyTarget, menu models.MenuIndex, sep string) string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, targetName(t, menu))
	}
	return strings.Join(names, sep)
}

func withQty(qty int, s string) string {
	if qty > 1 {
		return fmt.Sprintf("%d × %s", qty, s)
	}
	return s
}

func cartDiscountLabel(p *models.PromoCode) string {
	var label string
	switch p.DiscountType {
	case models.DiscountTypePercentage:
		label = p.DiscountValue.String() + "% OFF"
		if p.MaxDiscount != nil && *p.MaxDiscount > 0 {
			label += " up to " + formatRupees(*p.MaxDiscount)
		}
	case models.DiscountTypeFixed:
		label = formatRupees(p.DiscountValue.IntPart()) + " OFF"
	default:
		return ""
	}
	if p.MinOrder != nil && *p.MinOrder > 0 {
		label += " on orders above " + formatRupees(*p.MinOrder)
	}
	return label
}

// BuildOfferBadge derives the display badge for a promo that the caller has
// already found active. It returns nil when the promo cannot be described.
func BuildOfferBadge(p *models.PromoCode, targets []models.BxgyTarget, menu models.MenuIndex) *models.OfferBadge {
	badge := &models.OfferBadge{
		PromoID:   p.ID,
		Code:      p.Code,
		DealType:  p.DealType,
		AutoApply: p.AutoApply,
	}
	if p.AutoApply {
		badge.Subtitle = "Auto-applied at checkout"
	} else {
		badge.Subtitle = "Use code " + p.Code
	}

	switch p.DealType {
	case models.DealTypeCartDiscount:
		badge.Label = cartDiscountLabel(p)
		if badge.Label == "" {
			return nil
		}
	case models.DealTypeBxgy:
		buy, get := SplitTargets(targets)
		if len(buy) == 0 || len(get) == 0 {
			return nil
		}
		badge.Label = fmt.Sprintf("Buy %s, Get %s Free",
			withQty(p.BuyQty, targetNames(buy, menu, " + ")),
			withQty(p.GetQty, targetNames(get, menu, " or ")))
		for _, t := range buy {
			if t.MenuItemID != nil {
				id := *t.MenuItemID
				badge.FocusItemID = &id
				break
			}
		}
	default:
		return nil
	}
	return badge
}

// BestOfferBadge picks exactly one badge among the promos active at now.
// Promos that cannot produce a badge are not candidates.
func BestOfferBadge(promos []models.PromoCode, targets map[uuid.UUID][]models.BxgyTarget, menu models.MenuIndex, now time.Time) *models.OfferBadge {
	candidates := make([]models.PromoCode, 0, len(promos))
	for i := range promos {
		if BuildOfferBadge(&promos[i], targets[promos[i].ID], menu) != nil {
			candidates = append(candidates, promos[i])
		}
	}
	best := PickPromo(candidates, now)
	if best == nil {
		return nil
	}
	return BuildOfferBadge(best, targets[best.ID], menu)
}

// ActivePromos filters promos to those active at now, best first.
func ActivePromos(promos []models.PromoCode, now time.Time) []models.PromoCode {
	var out []models.PromoCode
	for i := range promos {
		if IsPromoActiveNow(&promos[i], now) {
			out = append(out, promos[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return promoOutranks(&out[i], &out[j]) })
	return out
}
