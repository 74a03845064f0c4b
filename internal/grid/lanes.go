package grid

import (
	"sort"

	"slotcal/internal/model"
)

// laneCandidates returns the non-busy events deduplicated by id, keeping
// the first occurrence.
func laneCandidates(events []model.Event) []model.Event {
	seen := make(map[string]bool, len(events))
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.IsBusy() || seen[ev.ID] {
			continue
		}
		seen[ev.ID] = true
		out = append(out, ev)
	}
	return out
}

// AssignLanes ranks the non-busy events by descending duration in days;
// the rank is the event's lane. Ties go to the earlier start, then the
// smaller id, so the result depends only on the event set: neither input
// order nor the visible window moves an event to another lane.
func AssignLanes(events []model.Event) map[string]int {
	cands := laneCandidates(events)
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if da, db := model.DurationDays(a), model.DurationDays(b); da != db {
			return da > db
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	lanes := make(map[string]int, len(cands))
	for i, ev := range cands {
		lanes[ev.ID] = i
	}
	return lanes
}
