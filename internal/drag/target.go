package drag

import (
	"slices"
	"sync"
	"time"
)

// Kind is the type of a raw drag signal delivered to an EventTarget.
type Kind string

const (
	KindDragOver Kind = "dragover"
	KindDragEnd  Kind = "dragend"
	KindDrop     Kind = "drop"
)

// DOMEvent is a raw drag signal as delivered by a page.
type DOMEvent struct {
	Kind Kind
	// Date is the calendar date under the pointer when the page could
	// resolve it; zero otherwise.
	Date time.Time
	// X, Y are pointer coordinates, valid when HasPoint is set.
	X, Y     float64
	HasPoint bool
}

// Handler receives dispatched events.
type Handler func(DOMEvent)

// Target is anything listeners can be attached to for the lifetime of a
// gesture (the page document in practice).
type Target interface {
	Listen(kind Kind, h Handler) (release func())
}

type listener struct {
	kind Kind
	h    Handler
}

// EventTarget is a listener registry. Handlers run outside the registry
// lock, so a handler may release listeners (its own included).
type EventTarget struct {
	mu        sync.Mutex
	next      int
	listeners map[int]listener
}

func NewEventTarget() *EventTarget {
	return &EventTarget{listeners: make(map[int]listener)}
}

// Listen registers h for kind. The returned release func is idempotent.
func (t *EventTarget) Listen(kind Kind, h Handler) func() {
	t.mu.Lock()
	id := t.next
	t.next++
	t.listeners[id] = listener{kind: kind, h: h}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Dispatch delivers ev to every listener registered for ev.Kind at the time
// of the call, in registration order. It returns the number of handlers run.
func (t *EventTarget) Dispatch(ev DOMEvent) int {
	t.mu.Lock()
	ids := make([]int, 0, len(t.listeners))
	for id, l := range t.listeners {
		if l.kind == ev.Kind {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, t.listeners[id].h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return len(handlers)
}

// Len is the number of attached listeners.
func (t *EventTarget) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}
