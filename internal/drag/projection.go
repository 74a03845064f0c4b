package drag

import (
	"time"

	"slotcal/internal/model"
)

// Projection is the tentative, render-only view of an active gesture. The
// zero value means no gesture.
type Projection struct {
	Active    bool
	EventID   string
	DayOffset int
	// Target is the date currently under the pointer (the pending drop cell).
	Target time.Time
}

// Apply returns ev as it should be displayed during the gesture. Events
// other than the dragged one are returned unchanged.
func (p Projection) Apply(ev model.Event) model.Event {
	if !p.Active || ev.ID != p.EventID {
		return ev
	}
	return model.MoveByDays(ev, p.DayOffset)
}

// IsTarget reports whether date is the pending drop cell.
func (p Projection) IsTarget(date time.Time) bool {
	return p.Active && !p.Target.IsZero() && model.SameDay(p.Target, date)
}
