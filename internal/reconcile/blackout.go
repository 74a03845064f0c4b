package reconcile

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "slotcal/internal/log"
	"slotcal/internal/model"
)

const maxBlackoutOccurrences = 1000

// BlackoutIDPrefix marks synthetic busy events produced from blackouts.
const BlackoutIDPrefix = "blackout:"

// Blackout is a recurring unavailable period configured locally, e.g.
// "every Saturday and Sunday".
type Blackout struct {
	Name  string
	Title string
	// RRule is an RFC 5545 recurrence rule without DTSTART, e.g.
	// "FREQ=WEEKLY;BYDAY=SA,SU".
	RRule string
	// Start anchors the recurrence.
	Start time.Time
	// Days is the length of every occurrence in days (minimum 1).
	Days  int
	Color string
}

// BlackoutSet holds blackouts whose rules have been parsed once. It is
// immutable after CompileBlackouts and safe for concurrent use.
type BlackoutSet struct {
	loc   *time.Location
	rules []compiledBlackout
	diags []Diagnostic
}

type compiledBlackout struct {
	Blackout
	opt rrule.ROption
}

// CompileBlackouts parses every rule. Unparsable rules are logged here, once,
// and reported by Diagnostics.
func CompileBlackouts(blackouts []Blackout, loc *time.Location) *BlackoutSet {
	if loc == nil {
		loc = time.Local
	}
	s := &BlackoutSet{loc: loc}
	for i, b := range blackouts {
		opt, err := rrule.StrToROption(b.RRule)
		if err == nil {
			_, err = rrule.NewRRule(*opt)
		}
		if err != nil {
			s.diags = append(s.diags, Diagnostic{Index: i, ID: b.Name, Reason: fmt.Sprintf("rrule: %v", err)})
			appLog.Error("blackout: failed to parse RRULE", err, "name", b.Name, "rrule", b.RRule)
			continue
		}
		if b.Days < 1 {
			b.Days = 1
		}
		if b.Title == "" {
			b.Title = b.Name
		}
		s.rules = append(s.rules, compiledBlackout{Blackout: b, opt: *opt})
	}
	return s
}

// Diagnostics lists the rules that failed to compile.
func (s *BlackoutSet) Diagnostics() []Diagnostic {
	if s == nil {
		return nil
	}
	return s.diags
}

// Expand returns busy events for every occurrence that touches [from, to].
// Multi-day occurrences starting before from are included.
func (s *BlackoutSet) Expand(from, to time.Time) []model.Event {
	if s == nil {
		return nil
	}
	loc := s.loc
	var events []model.Event
	for _, b := range s.rules {
		start := b.Start
		if start.IsZero() {
			start = from
		}
		opt := b.opt
		opt.Dtstart = model.StartOfDay(start.In(loc))
		r, err := rrule.NewRRule(opt)
		if err != nil {
			appLog.Warn("blackout: rule rejected", "name", b.Name, "err", err)
			continue
		}

		lo := model.StartOfDay(from.In(loc)).AddDate(0, 0, -(b.Days - 1))
		occ := r.Between(lo, model.EndOfDay(to.In(loc)), true)
		if len(occ) > maxBlackoutOccurrences {
			appLog.Warn("blackout: occurrences truncated", "name", b.Name, "cap", maxBlackoutOccurrences)
			occ = occ[:maxBlackoutOccurrences]
		}
		for _, t := range occ {
			day := model.StartOfDay(t.In(loc))
			events = append(events, model.Event{
				ID:     BlackoutIDPrefix + b.Name + ":" + model.DateKey(day),
				Title:  b.Title,
				Start:  day,
				End:    model.EndOfDay(day.AddDate(0, 0, b.Days-1)),
				Color:  b.Color,
				Status: model.StatusBusy,
			})
		}
	}
	return events
}

// ExpandBlackouts compiles blackouts and expands them over [from, to].
func ExpandBlackouts(blackouts []Blackout, from, to time.Time, loc *time.Location) ([]model.Event, []Diagnostic) {
	s := CompileBlackouts(blackouts, loc)
	return s.Expand(from, to), s.Diagnostics()
}
