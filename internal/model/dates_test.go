package model

import (
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sample() Event {
	return Event{
		ID:     "1",
		Title:  "Standup",
		Start:  time.Date(2025, 4, 10, 9, 30, 0, 0, time.UTC),
		End:    time.Date(2025, 4, 12, 17, 0, 0, 0, time.UTC),
		Status: StatusAvailable,
	}
}

func TestIsOnDateUsesWholeDays(t *testing.T) {
	e := sample()
	cases := []struct {
		date time.Time
		want bool
	}{
		{day(2025, 4, 9), false},
		{day(2025, 4, 10), true},
		{time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), true},
		{day(2025, 4, 11), true},
		{time.Date(2025, 4, 12, 23, 59, 0, 0, time.UTC), true},
		{day(2025, 4, 13), false},
	}
	for _, c := range cases {
		if got := IsOnDate(e, c.date); got != c.want {
			t.Fatalf("IsOnDate(%s) = %v, want %v", c.date, got, c.want)
		}
	}
}

func TestStartAndEndDate(t *testing.T) {
	e := sample()
	if !IsStartDate(e, day(2025, 4, 10)) || IsStartDate(e, day(2025, 4, 11)) {
		t.Fatalf("IsStartDate mismatch")
	}
	if !IsEndDate(e, day(2025, 4, 12)) || IsEndDate(e, day(2025, 4, 11)) {
		t.Fatalf("IsEndDate mismatch")
	}
}

func TestMoveByDaysZeroIsIdentity(t *testing.T) {
	e := sample()
	if got := MoveByDays(e, 0); !reflect.DeepEqual(got, e) {
		t.Fatalf("MoveByDays(e, 0) changed the event: %+v", got)
	}
}

func TestMoveByDaysRoundTrip(t *testing.T) {
	e := sample()
	for _, n := range []int{1, -1, 3, 30, -45, 365} {
		moved := MoveByDays(e, n)
		if DaysBetween(moved.Start, e.Start) != n {
			t.Fatalf("n=%d: start moved by %d days", n, DaysBetween(moved.Start, e.Start))
		}
		back := MoveByDays(moved, -n)
		if !back.Start.Equal(e.Start) || !back.End.Equal(e.End) {
			t.Fatalf("n=%d: round trip gave %s..%s", n, back.Start, back.End)
		}
	}
}

func TestMoveByDaysKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	e := Event{
		ID:    "dst",
		Start: time.Date(2025, 3, 29, 9, 0, 0, 0, loc),
		End:   time.Date(2025, 3, 29, 10, 0, 0, 0, loc),
	}
	moved := MoveByDays(e, 2)
	if moved.Start.Hour() != 9 || moved.Start.Day() != 31 {
		t.Fatalf("unexpected start after DST: %s", moved.Start)
	}
}

func TestMoveByDaysRoundTripThroughDSTGap(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 02:30 on 2025-03-09 does not exist in New York.
	e := Event{
		ID:    "gap",
		Start: time.Date(2025, 3, 8, 2, 30, 0, 0, loc),
		End:   time.Date(2025, 3, 8, 4, 0, 0, 0, loc),
	}
	moved := MoveByDays(e, 1)
	if DaysBetween(moved.Start, e.Start) != 1 || moved.Start.Hour() != 2 || moved.Start.Minute() != 30 {
		t.Fatalf("unexpected start inside the gap: %s", moved.Start)
	}
	back := MoveByDays(moved, -1)
	if !back.Start.Equal(e.Start) || !back.End.Equal(e.End) {
		t.Fatalf("round trip gave %s..%s, want %s..%s", back.Start, back.End, e.Start, e.End)
	}
	if back.Start.Hour() != 2 || back.Start.Minute() != 30 {
		t.Fatalf("wall clock lost: %s", back.Start)
	}
}

func TestWithDatesClampsEnd(t *testing.T) {
	e := sample()
	start := day(2025, 4, 20)
	got := WithDates(e, &start, nil)
	if !got.End.Equal(start) {
		t.Fatalf("end should clamp to start, got %s", got.End)
	}

	end := day(2025, 4, 15)
	got = WithDates(e, nil, &end)
	if !got.Start.Equal(e.Start) || !got.End.Equal(end) {
		t.Fatalf("unexpected range %s..%s", got.Start, got.End)
	}
}

func TestDurationDays(t *testing.T) {
	if got := DurationDays(sample()); got != 3 {
		t.Fatalf("DurationDays = %d, want 3", got)
	}
	single := Event{Start: day(2025, 1, 1), End: day(2025, 1, 1)}
	if got := DurationDays(single); got != 1 {
		t.Fatalf("DurationDays(single) = %d, want 1", got)
	}
}

func TestStartEndOfDay(t *testing.T) {
	ts := time.Date(2025, 4, 10, 13, 14, 15, 0, time.UTC)
	if got := StartOfDay(ts); !got.Equal(day(2025, 4, 10)) {
		t.Fatalf("StartOfDay = %s", got)
	}
	want := time.Date(2025, 4, 10, 23, 59, 59, 999000000, time.UTC)
	if got := EndOfDay(ts); !got.Equal(want) {
		t.Fatalf("EndOfDay = %s", got)
	}
}

func TestDisplayColor(t *testing.T) {
	e := Event{Status: StatusBusy}
	if e.DisplayColor() != ColorBusy {
		t.Fatalf("busy default color = %s", e.DisplayColor())
	}
	e.Color = "#000000"
	if e.DisplayColor() != "#000000" {
		t.Fatalf("explicit color ignored")
	}
}

func TestOwnerDisplay(t *testing.T) {
	o := &Owner{FirstName: "Ada", LastName: "Lovelace"}
	if o.DisplayName() != "Ada Lovelace" || o.Initials() != "AL" {
		t.Fatalf("got %q / %q", o.DisplayName(), o.Initials())
	}
	var none *Owner
	if none.DisplayName() != "" || none.Initials() != "" {
		t.Fatalf("nil owner should render empty")
	}
}
