package timewindow

import (
	"time"
)

// Window is a concrete [Start, End) UTC instant pair scoping analytics
// queries. Start <= End always holds.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the half-open window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns the window width in whole days, rounded up.
func (w Window) Days() int {
	d := w.End.Sub(w.Start)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// accepted input layouts, tried in order; date-only inputs expand to
// start-of-day or end-of-day depending on which bound they set
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

const dateLayout = "2006-01-02"

// Resolve normalizes heterogeneous time-range inputs into a concrete window.
// days is the default width; start and end may each be empty, a calendar
// date (YYYY-MM-DD) or a timestamp. Malformed values are treated as absent.
// Inverted ranges are swapped, never rejected.
func Resolve(days int, start, end string) Window {
	return ResolveAt(days, start, end, time.Now().UTC())
}

// ResolveAt is Resolve with an explicit "now", for deterministic callers.
func ResolveAt(days int, start, end string, now time.Time) Window {
	now = now.UTC()
	if days < 0 {
		days = 0
	}

	startAt, hasStart := parseInstant(start, false)
	endAt, hasEnd := parseInstant(end, true)

	switch {
	case hasStart && !hasEnd:
		endAt = now
	case !hasStart && hasEnd:
		startAt = endAt.AddDate(0, 0, -days)
	case !hasStart && !hasEnd:
		endAt = now
		startAt = now.AddDate(0, 0, -days)
	}

	if startAt.After(endAt) {
		startAt, endAt = endAt, startAt
	}

	return Window{Start: startAt, End: endAt}
}

// parseInstant parses a date or timestamp string in UTC. Date-only values
// expand to start-of-day, or end-of-day (23:59:59.999999) when the value
// sets the end bound.
func parseInstant(value string, isEnd bool) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	if d, err := time.ParseInLocation(dateLayout, value, time.UTC); err == nil {
		if isEnd {
			return d.Add(24*time.Hour - time.Microsecond), true
		}
		return d, true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	// malformed input falls through to the defaulting rules
	return time.Time{}, false
}
