package achievements

import (
	"fmt"
	"time"
)

// WindowUnit is the calendar bucket used by windowed conditions.
type WindowUnit string

const (
	UnitDay   WindowUnit = "day"
	UnitWeek  WindowUnit = "week"
	UnitMonth WindowUnit = "month"
)

func (u WindowUnit) valid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth:
		return true
	}
	return false
}

// WeekKey returns the ISO-8601 year and week of t as "YYYY-Www". The ISO year can differ from
// the calendar year in the first and last days of January and December.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// TruncateToWindowStart returns the start of a window of count calendar units ending with the
// unit containing t. A 7 day window anchored on day 10 starts at midnight of day 4.
// Counts below 1 are treated as 1. The computation happens in t's location.
func TruncateToWindowStart(t time.Time, unit WindowUnit, count int) time.Time {
	if count < 1 {
		count = 1
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	switch unit {
	case UnitWeek:
		// Monday is day 0 of an ISO week.
		offset := (int(day.Weekday()) + 6) % 7
		monday := day.AddDate(0, 0, -offset)
		return monday.AddDate(0, 0, -7*(count-1))
	case UnitMonth:
		first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
		return first.AddDate(0, -(count - 1), 0)
	default:
		return day.AddDate(0, 0, -(count - 1))
	}
}

// CountInWindow counts events completed within [TruncateToWindowStart(anchor), anchor].
func CountInWindow(events []CompletionEvent, anchor time.Time, unit WindowUnit, count int) int {
	start := TruncateToWindowStart(anchor, unit, count)
	n := 0
	for _, e := range events {
		if e.CompletedAt.Before(start) || e.CompletedAt.After(anchor) {
			continue
		}
		n++
	}
	return n
}

// StreakWeeks counts consecutive ISO weeks, ending with anchor's week, that contain at least one
// event. Counting stops at limit. Events after anchor are ignored.
func StreakWeeks(events []CompletionEvent, anchor time.Time, limit int) int {
	covered := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.CompletedAt.After(anchor) {
			continue
		}
		covered[WeekKey(e.CompletedAt)] = struct{}{}
	}

	streak := 0
	cursor := anchor
	for streak < limit {
		if _, ok := covered[WeekKey(cursor)]; !ok {
			break
		}
		streak++
		// Seven days back always lands in the previous ISO week.
		cursor = cursor.AddDate(0, 0, -7)
	}
	return streak
}
