// Package period resolves named date-range presets to concrete bounds.
package period

import (
	"time"

	"github.com/reportengine/internal/models"
)

// Range is an inclusive date range. Closed ranges end on the last millisecond
// of their calendar unit.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Resolve returns the bounds of preset relative to now, in now's location.
// Unknown presets resolve to the last 30 days.
func Resolve(preset models.PeriodPreset, now time.Time) Range {
	loc := now.Location()
	y, m, _ := now.Date()

	switch preset {
	case models.PeriodLast7Days:
		return Range{Start: now.AddDate(0, 0, -7), End: now}
	case models.PeriodLast30Days:
		return Range{Start: now.AddDate(0, 0, -30), End: now}
	case models.PeriodLast90Days:
		return Range{Start: now.AddDate(0, 0, -90), End: now}

	case models.PeriodThisMonth:
		return Range{Start: time.Date(y, m, 1, 0, 0, 0, 0, loc), End: now}
	case models.PeriodLastMonth:
		current := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Range{Start: current.AddDate(0, -1, 0), End: endBefore(current)}

	case models.PeriodThisQuarter:
		return Range{Start: quarterStart(now), End: now}
	case models.PeriodLastQuarter:
		current := quarterStart(now)
		return Range{Start: current.AddDate(0, -3, 0), End: endBefore(current)}

	case models.PeriodThisYear:
		return Range{Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc), End: now}
	case models.PeriodLastYear:
		current := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return Range{Start: current.AddDate(-1, 0, 0), End: endBefore(current)}

	default:
		return Range{Start: now.AddDate(0, 0, -30), End: now}
	}
}

// Valid reports whether preset is one of the known names.
func Valid(preset models.PeriodPreset) bool {
	switch preset {
	case models.PeriodLast7Days, models.PeriodLast30Days, models.PeriodLast90Days,
		models.PeriodThisMonth, models.PeriodLastMonth,
		models.PeriodThisQuarter, models.PeriodLastQuarter,
		models.PeriodThisYear, models.PeriodLastYear:
		return true
	}
	return false
}

func quarterStart(t time.Time) time.Time {
	first := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), first, 1, 0, 0, 0, 0, t.Location())
}

// endBefore is the last millisecond before start.
func endBefore(start time.Time) time.Time {
	return start.Add(-time.Millisecond)
}
