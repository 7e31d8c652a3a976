package models

type MenuItem struct {
	ID           string
	MerchantID   int64
	CategoryID   string
	CategoryName string
	Name         string
	Price        int64
	IsVeg        bool
	IsAvailable  bool
}

// Merchant is a restaurant/seller in the marketplace.
type Merchant struct {
	ID          int64
	Name        string
	Lat         float64
	Lon         float64
	OpeningTime *string // "HH:MM", nil means no schedule
	ClosingTime *string
	ChatID      int64 // Telegram chat receiving merchant order cards, 0 if not linked
}

// DeliveryFeeTier is one step of a merchant's distance-to-fee table.
type DeliveryFeeTier struct {
	MaxDistanceKm float64 `json:"max_distance_km"`
	Fee           int64   `json:"fee"`
}

// MenuIndex resolves ids to display names for offer labels.
type MenuIndex struct {
	Items      map[string]string // menu item id -> name
	Categories map[string]string // category id -> name
}

func NewMenuIndex(items []MenuItem) MenuIndex {
	idx := MenuIndex{Items: map[string]string{}, Categories: map[string]string{}}
	for _, it := range items {
		idx.Items[it.ID] = it.Name
		if it.CategoryID != "" && it.CategoryName != "" {
			idx.Categories[it.CategoryID] = it.CategoryName
		}
	}
	return idx
}
