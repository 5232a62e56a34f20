// Package versioned resolves effective-dated attribute histories such as
// stock costs, menu prices and staff salaries.
package versioned

import (
	"time"

	"github.com/samber/mo"
)

// Entry is one row of an append-only history.
type Entry interface {
	EffectiveFrom() time.Time
	RecordedAt() time.Time
}

// Day truncates t to midnight of its calendar date in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// CalendarDate returns t's own calendar date as UTC midnight, the form start
// dates are stored in.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Resolve returns the entry in effect on asOf: the greatest start date on or
// before asOf. Dates are compared as calendar dates, each read in its own
// location. Entries sharing a start date are ordered by recorded time and
// then by position, so the last appended row wins.
func Resolve[E Entry](entries []E, asOf time.Time) mo.Option[E] {
	cutoff := civil(asOf)

	found := false
	var best E
	var bestStart int
	for _, entry := range entries {
		start := civil(entry.EffectiveFrom())
		if start > cutoff {
			continue
		}
		if !found || start > bestStart || (start == bestStart && !entry.RecordedAt().Before(best.RecordedAt())) {
			best = entry
			bestStart = start
			found = true
		}
	}
	if !found {
		return mo.None[E]()
	}
	return mo.Some(best)
}

func civil(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
