package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "slotcal/internal/log"
)

// vevent is the subset of a VEVENT needed to block dates.
type vevent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	// Transparent events (TRANSP:TRANSPARENT) do not block time.
	Transparent bool
	RRule       string
	ExDates     []time.Time
	// RecurrenceID is set on overrides of a single recurring instance.
	RecurrenceID *time.Time
	Cancelled    bool
}

// parseCalendar parses an ICS body. Broken VEVENTs are skipped and logged.
func parseCalendar(feed Feed, body []byte, loc *time.Location) ([]vevent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]vevent, 0)
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp, loc)
		if err != nil {
			appLog.Warn("feed: skipping vevent", "id", feed.ID, "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var out vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	var err error
	if out.Start, err = propTime(dtStart, loc); err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if out.End, err = propTime(p, loc); err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
	}
	if out.End.IsZero() || out.End.Before(out.Start) {
		// RFC 5545: a missing DTEND is one day for dates, zero length otherwise.
		out.End = out.Start
		if out.AllDay {
			out.End = out.Start.AddDate(0, 0, 1)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil {
		out.Transparent = strings.EqualFold(strings.TrimSpace(p.Value), string(ical.TransparencyTransparent))
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), string(ical.ObjectStatusCancelled))
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := propTime(p, loc); err == nil {
			out.RecurrenceID = &t
		}
	}
	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// propTime honors a TZID parameter and otherwise falls back to
// parseICSTime.
func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) == 1 {
		zone, err := time.LoadLocation(tz[0])
		if err != nil {
			return time.Time{}, err
		}
		loc = zone
	}
	return parseICSTime(p.Value, loc)
}

// parseICSTime parses DATE and DATE-TIME values. Floating values are taken
// in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
