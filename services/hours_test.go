package services

import (
	"testing"
	"time"
)

func clock(h, m int) time.Time {
	return time.Date(2026, 5, 2, h, m, 0, 0, time.UTC)
}

func TestIsRestaurantOpen(t *testing.T) {
	tests := []struct {
		name             string
		opening, closing *string
		now              time.Time
		wantOpen         bool
		wantStatus       string
	}{
		{"overnight late evening", strp("22:00"), strp("06:00"), clock(23, 0), true, OpenStatusOpen},
		{"overnight early morning", strp("22:00"), strp("06:00"), clock(5, 59), true, OpenStatusOpen},
		{"overnight closes at bound", strp("22:00"), strp("06:00"), clock(6, 0), false, OpenStatusClosed},
		{"overnight morning closed", strp("22:00"), strp("06:00"), clock(7, 0), false, OpenStatusClosed},
		{"day opens at bound", strp("10:00"), strp("22:30"), clock(10, 0), true, OpenStatusOpen},
		{"day closed at bound", strp("10:00"), strp("22:30"), clock(22, 30), false, OpenStatusClosed},
		{"day before opening", strp("10:00"), strp("22:30"), clock(9, 59), false, OpenStatusClosed},
		{"no schedule", nil, nil, clock(3, 0), true, OpenStatusAlwaysOpen},
		{"only opening", strp("10:00"), nil, clock(3, 0), true, OpenStatusAlwaysOpen},
		{"malformed", strp("10am"), strp("22:00"), clock(3, 0), true, OpenStatusAlwaysOpen},
		{"seconds accepted", strp("09:00:00"), strp("17:00:00"), clock(18, 0), false, OpenStatusClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRestaurantOpen(tt.opening, tt.closing, tt.now)
			if got.IsOpen != tt.wantOpen || got.Status != tt.wantStatus {
				t.Errorf("IsRestaurantOpen = %+v, want open=%v status=%s", got, tt.wantOpen, tt.wantStatus)
			}
		})
	}
}

func TestIsRestaurantOpen_Labels(t *testing.T) {
	got := IsRestaurantOpen(strp("22:00"), strp("06:30"), clock(12, 0))
	if got.OpensAt != "10:00 PM" || got.ClosesAt != "6:30 AM" {
		t.Errorf("labels = %q / %q", got.OpensAt, got.ClosesAt)
	}
	if got := IsRestaurantOpen(nil, nil, clock(12, 0)); got.OpensAt != "" || got.ClosesAt != "" {
		t.Errorf("always-open labels = %+v", got)
	}
}

func TestFormatClock12h(t *testing.T) {
	tests := map[string]string{
		"00:00": "12:00 AM",
		"00:05": "12:05 AM",
		"11:59": "11:59 AM",
		"12:00": "12:00 PM",
		"13:45": "1:45 PM",
		"23:00": "11:00 PM",
		"bad":   "bad",
	}
	for in, want := range tests {
		if got := FormatClock12h(in); got != want {
			t.Errorf("FormatClock12h(%q) = %q, want %q", in, got, want)
		}
	}
}
