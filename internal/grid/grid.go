// Package grid lays out the multi-month calendar: one cell per day, one
// indicator per event-day intersection, stacked in stable lanes.
package grid

import (
	"sort"
	"strconv"
	"time"

	"slotcal/internal/drag"
	"slotcal/internal/model"
	"slotcal/internal/reconcile"
)

// Options controls a render pass.
type Options struct {
	// FirstMonth is any date inside the first visible month.
	FirstMonth time.Time
	// Months is the number of visible months (minimum 1).
	Months    int
	WeekStart time.Weekday
	// Today marks the current date. Zero means time.Now().
	Today time.Time
	// MinDate, when set, disables every earlier date.
	MinDate time.Time
	// Disabled blocks dates covered by busy events.
	Disabled reconcile.DisabledIndex
	// IsUnavailable is an extra caller predicate. Optional.
	IsUnavailable func(time.Time) bool
	// Projection is the tentative state of an active drag.
	Projection drag.Projection
	// Draggable is false while mutations are not possible (disconnected).
	Draggable bool
	Location  *time.Location
}

// Month is one rendered month grid.
type Month struct {
	Year  int
	Month time.Month
	// Weeks always hold seven cells; days outside the month have InMonth unset.
	Weeks [][]Cell
	// Lanes is the number of lanes used by any cell of the month.
	Lanes int
}

// Title is e.g. "April 2025".
func (m Month) Title() string {
	return m.Month.String() + " " + strconv.Itoa(m.Year)
}

// Cell is one day.
type Cell struct {
	Date        time.Time
	Key         string
	InMonth     bool
	Today       bool
	BeforeMin   bool
	Unavailable bool
	// Disabled cells are not selectable: before MinDate or unavailable.
	Disabled bool
	// DropTarget marks the cell under an active drag.
	DropTarget bool
	Indicators []Indicator
	// BusyIDs are the busy events blocking this date.
	BusyIDs []string
}

// Indicator is the segment of one event on one day.
type Indicator struct {
	EventID string
	Title   string
	Color   string
	Status  model.Status
	Owner   *model.Owner
	Lane    int
	// IsStart and IsEnd get rounded caps.
	IsStart bool
	IsEnd   bool
	// ShowLabel is set on the start-day segment only.
	ShowLabel bool
	Dragging  bool
	Draggable bool
}

// Build lays out opts.Months month grids for events.
func Build(events []model.Event, opts Options) []Month {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if opts.Months < 1 {
		opts.Months = 1
	}
	if opts.FirstMonth.IsZero() {
		opts.FirstMonth = time.Now()
	}
	if opts.Today.IsZero() {
		opts.Today = time.Now()
	}

	lanes := AssignLanes(events)
	cands := laneCandidates(events)

	fm := opts.FirstMonth.In(loc)
	first := time.Date(fm.Year(), fm.Month(), 1, 0, 0, 0, 0, loc)

	months := make([]Month, 0, opts.Months)
	for i := 0; i < opts.Months; i++ {
		months = append(months, buildMonth(first.AddDate(0, i, 0), cands, lanes, opts))
	}
	return months
}

func buildMonth(first time.Time, cands []model.Event, lanes map[string]int, opts Options) Month {
	m := Month{Year: first.Year(), Month: first.Month()}

	lead := (int(first.Weekday()) - int(opts.WeekStart) + 7) % 7
	cursor := first.AddDate(0, 0, -lead)

	for {
		week := make([]Cell, 7)
		for i := range week {
			week[i] = buildCell(cursor, first.Month(), cands, lanes, opts)
			for _, ind := range week[i].Indicators {
				if ind.Lane+1 > m.Lanes {
					m.Lanes = ind.Lane + 1
				}
			}
			cursor = cursor.AddDate(0, 0, 1)
		}
		m.Weeks = append(m.Weeks, week)
		if cursor.Month() != first.Month() {
			break
		}
	}
	return m
}

func buildCell(date time.Time, month time.Month, cands []model.Event, lanes map[string]int, opts Options) Cell {
	c := Cell{
		Date:    date,
		Key:     model.DateKey(date),
		InMonth: date.Month() == month,
		Today:   model.SameDay(date, opts.Today),
	}
	if !c.InMonth {
		return c
	}

	c.BeforeMin = !opts.MinDate.IsZero() && model.DaysBetween(date, opts.MinDate) < 0
	c.BusyIDs = opts.Disabled.EventIDsOn(date)
	c.Unavailable = len(c.BusyIDs) > 0 || (opts.IsUnavailable != nil && opts.IsUnavailable(date))
	c.Disabled = c.BeforeMin || c.Unavailable
	c.DropTarget = opts.Projection.IsTarget(date)

	for _, ev := range cands {
		shown := opts.Projection.Apply(ev)
		if !model.IsOnDate(shown, date) {
			continue
		}
		isStart := model.IsStartDate(shown, date)
		dragging := opts.Projection.Active && ev.ID == opts.Projection.EventID
		c.Indicators = append(c.Indicators, Indicator{
			EventID:   ev.ID,
			Title:     ev.Title,
			Color:     ev.DisplayColor(),
			Status:    ev.Status,
			Owner:     ev.Owner,
			Lane:      lanes[ev.ID],
			IsStart:   isStart,
			IsEnd:     model.IsEndDate(shown, date),
			ShowLabel: isStart,
			Dragging:  dragging,
			Draggable: opts.Draggable,
		})
	}
	sort.SliceStable(c.Indicators, func(i, j int) bool {
		return c.Indicators[i].Lane < c.Indicators[j].Lane
	})

	// A drop cell holding only the dragged event shows it on top instead of
	// floating below empty lanes.
	if c.DropTarget && len(c.Indicators) == 1 && c.Indicators[0].Dragging {
		c.Indicators[0].Lane = 0
	}
	return c
}

// Weekdays returns the short weekday names starting at start.
func Weekdays(start time.Weekday) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = time.Weekday((int(start) + i) % 7).String()[:3]
	}
	return out
}
