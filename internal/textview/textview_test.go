package textview

import (
	"strings"
	"testing"
	"time"

	"slotcal/internal/grid"
	"slotcal/internal/model"
	"slotcal/internal/reconcile"
)

func TestRenderMarksEventsAndUnavailableDays(t *testing.T) {
	events := []model.Event{
		{ID: "1", Title: "Shoot", Status: model.StatusAvailable,
			Start: time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 12, 18, 0, 0, 0, time.UTC),
			Owner: &model.Owner{FirstName: "Ada", LastName: "Lovelace"}},
		{ID: "2", Title: "Vacation", Status: model.StatusBusy,
			Start: time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 21, 0, 0, 0, 0, time.UTC)},
	}
	months := grid.Build(events, grid.Options{
		FirstMonth: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Months:     1,
		WeekStart:  time.Monday,
		Today:      time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Disabled:   reconcile.BuildDisabledIndex(events),
		Location:   time.UTC,
	})

	out := Render(months, grid.Weekdays(time.Monday), events)
	for _, want := range []string{"April 2025", "Mo", "10*", "12*", "20x", "21x", "Shoot", "Apr 10 - Apr 12", "Ada Lovelace"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Vacation") {
		t.Fatalf("busy events are not part of the legend:\n%s", out)
	}
	if strings.Contains(out, "13*") {
		t.Fatalf("13th has no event:\n%s", out)
	}
}
