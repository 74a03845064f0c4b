// Package popover is the on-demand detail surface for unavailable dates.
package popover

import (
	"sync"
	"time"

	"slotcal/internal/model"
	"slotcal/internal/reconcile"
)

// Detail lists the busy events blocking one date.
type Detail struct {
	DateKey string        `json:"date"`
	Events  []model.Event `json:"events"`
}

// Source supplies the current events and disabled index.
type Source interface {
	Events() []model.Event
	Disabled() reconcile.DisabledIndex
}

// Surface tracks which date's detail is open. At most one is open at a time.
type Surface struct {
	src Source
	loc *time.Location

	mu   sync.Mutex
	open string
}

func NewSurface(src Source, loc *time.Location) *Surface {
	if loc == nil {
		loc = time.Local
	}
	return &Surface{src: src, loc: loc}
}

// Lookup builds the detail for key without changing which one is open.
// ok is false for a malformed key or a date that is not blocked.
func (s *Surface) Lookup(key string) (Detail, bool) {
	date, err := model.ParseDateKey(key, s.loc)
	if err != nil {
		return Detail{}, false
	}
	return For(date, s.src.Events(), s.src.Disabled())
}

// Open opens the detail for key, replacing any other.
func (s *Surface) Open(key string) (Detail, bool) {
	d, ok := s.Lookup(key)
	if !ok {
		return Detail{}, false
	}
	s.mu.Lock()
	s.open = key
	s.mu.Unlock()
	return d, true
}

func (s *Surface) Close() {
	s.mu.Lock()
	s.open = ""
	s.mu.Unlock()
}

// Current re-derives the open detail from the latest snapshot. It closes
// itself when the date is no longer blocked.
func (s *Surface) Current() (Detail, bool) {
	s.mu.Lock()
	key := s.open
	s.mu.Unlock()
	if key == "" {
		return Detail{}, false
	}
	d, ok := s.Lookup(key)
	if !ok {
		s.Close()
	}
	return d, ok
}

// For collects the busy events responsible for blocking date.
func For(date time.Time, events []model.Event, idx reconcile.DisabledIndex) (Detail, bool) {
	ids := idx.EventIDsOn(date)
	if len(ids) == 0 {
		return Detail{}, false
	}
	byID := make(map[string]model.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	d := Detail{DateKey: model.DateKey(date), Events: make([]model.Event, 0, len(ids))}
	for _, id := range ids {
		if ev, ok := byID[id]; ok {
			d.Events = append(d.Events, ev)
		}
	}
	return d, true
}
