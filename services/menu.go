package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"pattibytes-express/db"
	"pattibytes-express/models"
)

var (
	ErrEmptyCart           = errors.New("order has no items")
	ErrMenuItemUnavailable = errors.New("menu item unavailable")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
)

const menuColumns = `
	mi.id, mi.merchant_id, COALESCE(mi.category_id::text, ''), COALESCE(mc.name, ''),
	mi.name, mi.price, mi.is_veg, mi.is_available`

func scanMenuRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.MenuItem, error) {
	var items []models.MenuItem
	for rows.Next() {
		var id int64
		var it models.MenuItem
		if err := rows.Scan(&id, &it.MerchantID, &it.CategoryID, &it.CategoryName,
			&it.Name, &it.Price, &it.IsVeg, &it.IsAvailable); err != nil {
			return nil, err
		}
		it.ID = strconv.FormatInt(id, 10)
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListMerchantMenu returns every menu item of a merchant, available or not.
func ListMerchantMenu(ctx context.Context, merchantID int64) ([]models.MenuItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+menuColumns+`
		FROM menu_items mi
		LEFT JOIN menu_categories mc ON mc.id = mi.category_id
		WHERE mi.merchant_id = $1
		ORDER BY mc.sort_order NULLS LAST, mi.id`,
		merchantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMenuRows(rows)
}

// ResolveLineItems replaces client-supplied names and prices with the
// merchant's current menu. Unknown or unavailable items are rejected.
func ResolveLineItems(ctx context.Context, merchantID int64, requested []models.OrderItemInput) ([]models.LineItem, error) {
	if len(requested) == 0 {
		return nil, ErrEmptyCart
	}
	menu, err := ListMerchantMenu(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.MenuItem, len(menu))
	for _, it := range menu {
		byID[it.ID] = it
	}
	out := make([]models.LineItem, 0, len(requested))
	for _, r := range requested {
		it, ok := byID[r.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s not found", ErrMenuItemUnavailable, r.MenuItemID)
		}
		if !it.IsAvailable {
			return nil, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, it.Name)
		}
		if r.Qty < 1 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, it.Name)
		}
		out = append(out, models.LineItem{
			MenuItemID: it.ID,
			Name:       it.Name,
			CategoryID: it.CategoryID,
			UnitPrice:  it.Price,
			Qty:        r.Qty,
			IsVeg:      it.IsVeg,
		})
	}
	return out, nil
}
