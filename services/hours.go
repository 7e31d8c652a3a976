package services

import (
	"errors"
	"fmt"
	"time"
)

const (
	OpenStatusOpen       = "open"
	OpenStatusClosed     = "closed"
	OpenStatusAlwaysOpen = "always-open"
)

var ErrRestaurantClosed = errors.New("restaurant is closed")

// OpenState is the result of evaluating opening hours. A missing or
// unparsable bound yields always-open.
type OpenState struct {
	Status   string `json:"status"`
	IsOpen   bool   `json:"is_open"`
	OpensAt  string `json:"opens_at,omitempty"`  // 12-hour clock, e.g. "10:00 PM"
	ClosesAt string `json:"closes_at,omitempty"` // 12-hour clock
}

var alwaysOpen = OpenState{Status: OpenStatusAlwaysOpen, IsOpen: true}

// IsRestaurantOpen evaluates opening/closing "HH:MM" bounds at now. When
// closing <= opening the schedule wraps past midnight.
func IsRestaurantOpen(opening, closing *string, now time.Time) OpenState {
	if opening == nil || closing == nil {
		return alwaysOpen
	}
	open, ok1 := ParseClock(*opening)
	cl, ok2 := ParseClock(*closing)
	if !ok1 || !ok2 {
		return alwaysOpen
	}
	cur := minutesOfDay(now)
	var isOpen bool
	if cl <= open {
		isOpen = cur >= open || cur < cl
	} else {
		isOpen = cur >= open && cur < cl
	}
	st := OpenState{
		Status:   OpenStatusClosed,
		IsOpen:   isOpen,
		OpensAt:  formatMinutes12h(open),
		ClosesAt: formatMinutes12h(cl),
	}
	if isOpen {
		st.Status = OpenStatusOpen
	}
	return st
}

func formatMinutes12h(m int) string {
	h, mm := m/60, m%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, mm, suffix)
}

// FormatClock12h renders "HH:MM" as "h:MM AM/PM"; malformed input is
// returned unchanged.
func FormatClock12h(s string) string {
	m, ok := ParseClock(s)
	if !ok {
		return s
	}
	return formatMinutes12h(m)
}
