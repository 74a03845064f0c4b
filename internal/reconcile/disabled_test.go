package reconcile

import (
	"reflect"
	"testing"
	"time"

	"slotcal/internal/model"
)

func TestDisabledIndexCoversEveryBusyDay(t *testing.T) {
	events := []model.Event{
		{ID: "free", Status: model.StatusAvailable,
			Start: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC)},
		{ID: "trip", Status: model.StatusBusy,
			Start: time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 12, 8, 0, 0, 0, time.UTC)},
		{ID: "dentist", Status: model.StatusBusy,
			Start: time.Date(2025, 4, 12, 10, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 12, 11, 0, 0, 0, time.UTC)},
	}
	idx := BuildDisabledIndex(events)
	if idx.Len() != 2 {
		t.Fatalf("expected 2 intervals, got %d", idx.Len())
	}

	for d := 10; d <= 12; d++ {
		if !idx.Contains(time.Date(2025, 4, d, 23, 0, 0, 0, time.UTC)) {
			t.Fatalf("day %d should be disabled", d)
		}
	}
	for _, d := range []int{1, 2, 3, 9, 13} {
		if idx.Contains(time.Date(2025, 4, d, 12, 0, 0, 0, time.UTC)) {
			t.Fatalf("day %d should not be disabled", d)
		}
	}

	got := idx.EventIDsOn(time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC))
	if !reflect.DeepEqual(got, []string{"trip", "dentist"}) {
		t.Fatalf("EventIDsOn = %v", got)
	}

	iv := idx.Intervals()[0]
	if iv.Start.Hour() != 0 || iv.End.Hour() != 23 || iv.End.Nanosecond() != 999000000 {
		t.Fatalf("interval not whole-day normalized: %s..%s", iv.Start, iv.End)
	}
}

func TestExpandBlackouts(t *testing.T) {
	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	events, diags := ExpandBlackouts([]Blackout{
		{Name: "weekend", Title: "Weekend", RRule: "FREQ=WEEKLY;BYDAY=SA", Days: 2,
			Start: time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)},
		{Name: "broken", RRule: "FREQ=SOMETIMES"},
	}, from, to, time.UTC)

	if len(diags) != 1 || diags[0].ID != "broken" {
		t.Fatalf("expected one diagnostic for broken rule, got %+v", diags)
	}
	// Saturdays in April 2025: 5, 12, 19, 26.
	if len(events) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(events))
	}
	first := events[0]
	if first.ID != "blackout:weekend:2025-04-05" || first.Status != model.StatusBusy {
		t.Fatalf("unexpected first occurrence %+v", first)
	}
	if model.DurationDays(first) != 2 {
		t.Fatalf("expected 2-day blackout, got %d", model.DurationDays(first))
	}

	idx := BuildDisabledIndex(events)
	if !idx.Contains(time.Date(2025, 4, 6, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday should be covered by the weekend blackout")
	}
}
