// Package ics bridges the calendar to iCalendar: busy feeds are imported
// as blocking events and the current event list is exported for
// subscription clients.
package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"slotcal/internal/model"
)

const productID = "-//slotcal//timeslots//EN"

// ExportOptions controls Export.
type ExportOptions struct {
	Name string
	// Domain qualifies UIDs, e.g. "slotcal.local".
	Domain string
	Now    time.Time
}

// Export writes events as a VCALENDAR. Busy events are opaque, everything
// else is transparent so subscribers do not see offered slots as busy.
func Export(w io.Writer, events []model.Event, opts ExportOptions) error {
	if opts.Domain == "" {
		opts.Domain = "slotcal.local"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}

	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if seen[ev.ID] {
			continue
		}
		seen[ev.ID] = true

		ve := cal.AddEvent(uid(ev.ID, opts.Domain))
		ve.SetDtStampTime(opts.Now.UTC())
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetSummary(summary(ev))
		if ev.Notes != "" {
			ve.SetDescription(ev.Notes)
		}
		if ev.Owner != nil && ev.Owner.DisplayName() != "" {
			ve.SetProperty(ical.ComponentProperty("X-SLOTCAL-OWNER"), ev.Owner.DisplayName())
		}
		ve.SetProperty(ical.ComponentProperty("X-SLOTCAL-STATUS"), string(ev.Status))
		ve.SetColor(ev.DisplayColor())
		if ev.IsBusy() {
			ve.SetTimeTransparency(ical.TransparencyOpaque)
		} else {
			ve.SetTimeTransparency(ical.TransparencyTransparent)
		}
	}
	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func uid(id, domain string) string {
	r := strings.NewReplacer(" ", "-", "@", "-")
	return r.Replace(id) + "@" + domain
}

func summary(ev model.Event) string {
	if ev.Title != "" {
		return ev.Title
	}
	return string(ev.Status)
}
