// Package slots narrows open appointment slots to a rolling date window.
package slots

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/previsit/internal/scheduling"
)

// Window is the rolling range applied to the "other slots" list.
type Window string

const (
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow accepts "week" or "month" in any case.
func ParseWindow(raw string) (Window, error) {
	switch Window(strings.ToLower(strings.TrimSpace(raw))) {
	case WindowWeek:
		return WindowWeek, nil
	case WindowMonth:
		return WindowMonth, nil
	default:
		return "", fmt.Errorf("slots: unknown window %q", raw)
	}
}

// End returns the inclusive upper bound of the window starting at now.
// A month is a calendar month, so Jan 31 rolls into early March like AddDate does.
func (w Window) End(now time.Time) time.Time {
	if w == WindowMonth {
		return now.AddDate(0, 1, 0)
	}
	return now.AddDate(0, 0, 7)
}

// Filter returns the slots whose start lies in [now, w.End(now)], preserving order.
// The input slice is never modified.
func Filter(in []scheduling.Appointment, w Window, now time.Time) []scheduling.Appointment {
	if len(in) == 0 {
		return []scheduling.Appointment{}
	}
	end := w.End(now)
	out := make([]scheduling.Appointment, 0, len(in))
	for _, slot := range in {
		start := slot.Start.Time
		if start.Before(now) || start.After(end) {
			continue
		}
		out = append(out, slot)
	}
	return out
}
