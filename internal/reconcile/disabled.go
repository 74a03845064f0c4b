package reconcile

import (
	"time"

	"slotcal/internal/model"
)

// Interval is one blocked whole-day range.
type Interval struct {
	EventID string
	Start   time.Time // floored to 00:00:00.000
	End     time.Time // ceiled to 23:59:59.999
}

// DisabledIndex is the read-only set of blocked day ranges, one per busy
// event. Build a new one whenever the event list changes.
type DisabledIndex struct {
	intervals []Interval
}

// BuildDisabledIndex derives the index from events. Non-busy events are ignored.
func BuildDisabledIndex(events []model.Event) DisabledIndex {
	idx := DisabledIndex{}
	for _, ev := range events {
		if !ev.IsBusy() {
			continue
		}
		idx.intervals = append(idx.intervals, Interval{
			EventID: ev.ID,
			Start:   model.StartOfDay(ev.Start),
			End:     model.EndOfDay(ev.End),
		})
	}
	return idx
}

// Intervals returns a copy of the blocked ranges.
func (d DisabledIndex) Intervals() []Interval {
	out := make([]Interval, len(d.intervals))
	copy(out, d.intervals)
	return out
}

func (d DisabledIndex) Len() int {
	return len(d.intervals)
}

// Contains reports whether date falls in any blocked range.
func (d DisabledIndex) Contains(date time.Time) bool {
	for _, iv := range d.intervals {
		if covers(iv, date) {
			return true
		}
	}
	return false
}

// EventIDsOn lists the busy events responsible for blocking date.
func (d DisabledIndex) EventIDsOn(date time.Time) []string {
	var ids []string
	for _, iv := range d.intervals {
		if covers(iv, date) {
			ids = append(ids, iv.EventID)
		}
	}
	return ids
}

func covers(iv Interval, date time.Time) bool {
	return model.DaysBetween(date, iv.Start) >= 0 && model.DaysBetween(iv.End, date) >= 0
}
