// Package duedate decides whether a due item must be notified now.
//
// Everything here is pure: callers pass the current time explicitly.
package duedate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/duewatch/internal/model"
)

// WindowTolerance is how far the current wall-clock time may be from the
// configured notification hour. Background triggers fire at coalesced,
// imprecise times.
const WindowTolerance = 5 * time.Minute

const minutesPerDay = 24 * 60

// DaysUntilDue returns the ceiling of (due - now) in whole days.
//
// Zero means due today, negative means already past.
func DaysUntilDue(due, now time.Time) int {
	days := due.Sub(now).Hours() / 24
	return int(math.Ceil(days))
}

// ParseHour parses a 24h "HH:MM" string into minutes since midnight.
func ParseHour(hour string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(hour), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid hour %q: want HH:MM", hour)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour %q: hours out of range", hour)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid hour %q: minutes out of range", hour)
	}
	return h*60 + m, nil
}

// IsNotificationWindow reports whether now's wall-clock time is within
// WindowTolerance of hour.
//
// The distance wraps around midnight: 23:58 and 00:02 are four minutes apart.
// An unparsable hour is never in the window.
func IsNotificationWindow(now time.Time, hour string) bool {
	target, err := ParseHour(hour)
	if err != nil {
		return false
	}
	current := now.Hour()*60 + now.Minute()

	diff := current - target
	if diff < 0 {
		diff = -diff
	}
	if diff > minutesPerDay/2 {
		diff = minutesPerDay - diff
	}
	return diff <= int(WindowTolerance/time.Minute)
}

// Qualifies applies the days rule: 0 <= days <= daysAdvance.
// Items already past due never qualify.
func Qualifies(days, daysAdvance int) bool {
	return days >= 0 && days <= daysAdvance
}

// Evaluation is a due item with its computed days-to-due.
type Evaluation struct {
	Item model.DueItem
	Days int
}

// Skip records an item that could not be evaluated.
type Skip struct {
	Item   model.DueItem
	Reason string
}

// Select returns the items that must be notified at now under cfg.
//
// The window check applies to the whole batch: outside the window nothing
// qualifies. Items with an unparsable due date are returned in skipped.
// now's location is used to read plain due dates.
func Select(items []model.DueItem, cfg model.NotificationConfig, now time.Time) (qualifying []Evaluation, skipped []Skip) {
	if !IsNotificationWindow(now, cfg.Hour) {
		return nil, nil
	}

	for _, item := range items {
		due, err := item.DueOn(now.Location())
		if err != nil {
			skipped = append(skipped, Skip{Item: item, Reason: err.Error()})
			continue
		}
		days := DaysUntilDue(due, now)
		if Qualifies(days, cfg.DaysAdvance) {
			qualifying = append(qualifying, Evaluation{Item: item, Days: days})
		}
	}
	return qualifying, skipped
}
