package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "slotcal/internal/log"
	"slotcal/internal/model"
)

const maxOccurrencesPerEvent = 2000

// FeedIDPrefix marks busy events produced from feeds.
const FeedIDPrefix = "feed:"

// Feeds loads busy events from external calendars.
type Feeds struct {
	fetcher *Fetcher
	feeds   []Feed
	loc     *time.Location
}

func NewFeeds(fetcher *Fetcher, feeds []Feed, loc *time.Location) *Feeds {
	if loc == nil {
		loc = time.Local
	}
	return &Feeds{fetcher: fetcher, feeds: feeds, loc: loc}
}

// Load fetches every feed and returns the busy events overlapping
// [from, to]. A failing feed is skipped; its error is joined into the
// returned error alongside the events of the others.
func (f *Feeds) Load(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	var (
		events []model.Event
		errs   []error
	)
	for _, feed := range f.feeds {
		body, err := f.fetcher.Fetch(ctx, feed)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		vevents, err := parseCalendar(feed, body, f.loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse feed %s: %w", feed.ID, err))
			continue
		}
		got := expand(feed, vevents, from, to, f.loc)
		appLog.Info("feed loaded", "id", feed.ID, "vevents", len(vevents), "busy", len(got))
		events = append(events, got...)
	}
	return events, errors.Join(errs...)
}

// expand turns vevents into busy events within [from, to]. Transparent and
// cancelled entries do not block.
func expand(feed Feed, vevents []vevent, from, to time.Time, loc *time.Location) []model.Event {
	overrides := make(map[string][]vevent)
	for _, ev := range vevents {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0)
	for _, ev := range vevents {
		if ev.RecurrenceID != nil {
			continue
		}
		if ev.RRule == "" {
			out = appendBusy(out, feed, ev, ev.Start, ev.End, from, to, loc)
			continue
		}

		r, err := rrule.StrToRRule(ev.RRule)
		if err != nil {
			appLog.Warn("feed: bad RRULE", "id", feed.ID, "uid", ev.UID, "err", err)
			continue
		}
		r.DTStart(ev.Start)
		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(ev.Start.Location()))
		}

		length := ev.End.Sub(ev.Start)
		// Widen by the event length so occurrences starting before from
		// but still running are kept.
		occ := set.Between(from.Add(-length).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
		if len(occ) > maxOccurrencesPerEvent {
			appLog.Warn("feed: occurrences truncated", "id", feed.ID, "uid", ev.UID, "cap", maxOccurrencesPerEvent)
			occ = occ[:maxOccurrencesPerEvent]
		}
		for _, start := range occ {
			inst, end := ev, start.Add(length)
			if ev.AllDay {
				end = start.AddDate(0, 0, int(length.Round(24*time.Hour)/(24*time.Hour)))
			}
			if o, ok := findOverride(overrides[ev.UID], start); ok {
				inst, start, end = o, o.Start, o.End
			}
			out = appendBusy(out, feed, inst, start, end, from, to, loc)
		}
	}
	return out
}

func findOverride(overrides []vevent, start time.Time) (vevent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return vevent{}, false
}

func appendBusy(out []model.Event, feed Feed, ev vevent, start, end, from, to time.Time, loc *time.Location) []model.Event {
	if ev.Transparent || ev.Cancelled {
		return out
	}
	start, end = start.In(loc), end.In(loc)
	if end.After(start) {
		// DTEND is exclusive.
		end = end.Add(-time.Nanosecond)
	}
	if end.Before(from) || start.After(to) {
		return out
	}
	title := ev.Summary
	if title == "" {
		title = feed.Name
	}
	return append(out, model.Event{
		ID:     FeedIDPrefix + feed.ID + ":" + ev.UID + ":" + start.UTC().Format("20060102T150405Z"),
		Title:  title,
		Start:  start,
		End:    end,
		Status: model.StatusBusy,
		Color:  model.ColorBusy,
		Notes:  feed.Name,
	})
}
