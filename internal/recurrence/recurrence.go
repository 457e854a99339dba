// Package recurrence computes the next execution instant of a schedule.
package recurrence

import (
	"strings"
	"time"

	"github.com/reportengine/internal/models"
)

const (
	DefaultHour       = 9
	DefaultDayOfWeek  = "monday"
	DefaultDayOfMonth = 1
	maxDayOfMonth     = 31
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a day name to its weekday. Matching is case-insensitive.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// NextRun returns the next execution instant for cfg after now, computed in
// now's location. It never fails: unknown frequencies, and custom ones, run
// again one day later.
func NextRun(cfg models.Recurrence, now time.Time) time.Time {
	hour := DefaultHour
	if cfg.Hour != nil && *cfg.Hour >= 0 && *cfg.Hour <= 23 {
		hour = *cfg.Hour
	}

	switch cfg.Frequency {
	case models.FrequencyDaily:
		// hour first, then the calendar day
		return atHour(now, hour).AddDate(0, 0, 1)

	case models.FrequencyWeekly:
		target, ok := ParseWeekday(cfg.DayOfWeek)
		if !ok {
			target = time.Monday
		}
		delta := int(target) - int(now.Weekday())
		if delta <= 0 {
			delta += 7
		}
		return atHour(now.AddDate(0, 0, delta), hour)

	case models.FrequencyMonthly:
		day := DefaultDayOfMonth
		if cfg.DayOfMonth != nil {
			day = *cfg.DayOfMonth
		}
		if day > maxDayOfMonth {
			day = maxDayOfMonth
		}
		if day < 1 {
			day = 1
		}
		// Build on the 1st so the month advance cannot roll over, then clamp
		// to the intended month's last day.
		first := time.Date(now.Year(), now.Month()+1, 1, hour, 0, 0, 0, now.Location())
		if last := daysIn(first); day > last {
			day = last
		}
		return time.Date(first.Year(), first.Month(), day, hour, 0, 0, 0, now.Location())

	default:
		return now.AddDate(0, 0, 1)
	}
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
