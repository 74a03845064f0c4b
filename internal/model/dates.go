package model

import "time"

// DateKeyLayout is the layout of date identifiers used by the grid, the
// popover and the page protocol.
const DateKeyLayout = "2006-01-02"

// StartOfDay floors t to 00:00:00.000 in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay ceils t to 23:59:59.999 in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// dayNumber maps the wall-clock date of t onto a day count, so that
// differences are immune to DST shifts.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// DaysBetween returns the number of calendar days from `from` to `to`.
// It is negative when to is before from.
func DaysBetween(to, from time.Time) int {
	return int(dayNumber(to) - dayNumber(from))
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return dayNumber(a) == dayNumber(b)
}

// DateKey formats t as "2006-01-02".
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey parses a "2006-01-02" key in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateKeyLayout, key, loc)
}

// IsOnDate reports whether date falls within [Start, End] at day granularity.
func IsOnDate(e Event, date time.Time) bool {
	n := dayNumber(date)
	return n >= dayNumber(e.Start) && n <= dayNumber(e.End)
}

func IsStartDate(e Event, date time.Time) bool {
	return SameDay(e.Start, date)
}

func IsEndDate(e Event, date time.Time) bool {
	return SameDay(e.End, date)
}

// MoveByDays shifts both boundaries by n days, keeping the time of day.
// n == 0 returns e untouched. Moving by n and then by -n gives back the same
// instants, also when the target wall clock falls into a DST gap or overlap.
func MoveByDays(e Event, n int) Event {
	if n == 0 {
		return e
	}
	e.Start = shiftDays(e.Start, n)
	e.End = shiftDays(e.End, n)
	return e
}

// shiftDays keeps t's location when both wall clocks name exactly one
// instant there. Otherwise it pins t's current offset, which the reverse
// shift then reads back unchanged.
func shiftDays(t time.Time, n int) time.Time {
	loc := t.Location()
	src := wallOf(t)
	y, m, d := time.Date(src.year, src.month, src.day+n, 12, 0, 0, 0, time.UTC).Date()
	dst := src
	dst.year, dst.month, dst.day = y, m, d
	if loc == time.UTC || (src.instants(loc) == 1 && dst.instants(loc) == 1) {
		return dst.in(loc)
	}
	name, off := t.Zone()
	return dst.in(time.FixedZone(name, off))
}

type wallClock struct {
	year                    int
	month                   time.Month
	day, hour, min, sec, ns int
}

func wallOf(t time.Time) wallClock {
	y, m, d := t.Date()
	return wallClock{y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond()}
}

func (w wallClock) in(loc *time.Location) time.Time {
	return time.Date(w.year, w.month, w.day, w.hour, w.min, w.sec, w.ns, loc)
}

// instants counts how many instants loc displays as w: 0 inside a gap,
// 2 inside an overlap.
func (w wallClock) instants(loc *time.Location) int {
	naive := w.in(time.UTC)
	var found []time.Time
	for k := -4; k <= 4; k++ {
		_, off := naive.Add(time.Duration(k) * 6 * time.Hour).In(loc).Zone()
		u := w.in(time.FixedZone("", off))
		if wallOf(u.In(loc)) != w {
			continue
		}
		dup := false
		for _, f := range found {
			if f.Equal(u) {
				dup = true
				break
			}
		}
		if !dup {
			found = append(found, u)
		}
	}
	return len(found)
}

// WithDates replaces the given boundaries. A nil pointer keeps the current
// value. End is clamped to Start when it would precede it.
func WithDates(e Event, start, end *time.Time) Event {
	if start != nil {
		e.Start = *start
	}
	if end != nil {
		e.End = *end
	}
	if e.End.Before(e.Start) {
		e.End = e.Start
	}
	return e
}

// DurationDays is the number of calendar days the event touches,
// counting both endpoints.
func DurationDays(e Event) int {
	return DaysBetween(e.End, e.Start) + 1
}

// Overlaps reports whether the whole-day ranges of a and b intersect.
func Overlaps(a, b Event) bool {
	return dayNumber(a.Start) <= dayNumber(b.End) && dayNumber(b.Start) <= dayNumber(a.End)
}
