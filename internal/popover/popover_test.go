package popover

import (
	"testing"
	"time"

	"slotcal/internal/model"
	"slotcal/internal/reconcile"
)

type staticSource struct {
	events []model.Event
}

func (s *staticSource) Events() []model.Event { return s.events }

func (s *staticSource) Disabled() reconcile.DisabledIndex {
	return reconcile.BuildDisabledIndex(s.events)
}

func TestSurfaceOpenListsBusyEvents(t *testing.T) {
	src := &staticSource{events: []model.Event{
		{ID: "a", Title: "Trip", Status: model.StatusBusy,
			Start: time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC)},
		{ID: "b", Title: "Focus", Status: model.StatusAvailable,
			Start: time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC)},
	}}
	s := NewSurface(src, time.UTC)

	d, ok := s.Open("2025-04-11")
	if !ok || d.DateKey != "2025-04-11" || len(d.Events) != 1 || d.Events[0].ID != "a" {
		t.Fatalf("unexpected detail %+v (ok=%v)", d, ok)
	}
	if cur, ok := s.Current(); !ok || cur.DateKey != "2025-04-11" {
		t.Fatalf("current should be the opened date")
	}

	if _, ok := s.Open("2025-04-13"); ok {
		t.Fatalf("free date should not open")
	}
	if _, ok := s.Open("garbage"); ok {
		t.Fatalf("malformed key should not open")
	}
	if cur, _ := s.Current(); cur.DateKey != "2025-04-11" {
		t.Fatalf("failed open should keep the previous detail")
	}

	// The busy event disappears from the next snapshot.
	src.events = src.events[1:]
	if _, ok := s.Current(); ok {
		t.Fatalf("detail should close once the date is free")
	}

	s.Close()
	if _, ok := s.Current(); ok {
		t.Fatalf("closed surface reports a detail")
	}
}
