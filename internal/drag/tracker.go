// Package drag tracks a single drag-to-reschedule gesture.
//
// Raw signals arrive from several redundant sources (the dragged element,
// grid cells, the page document). Every source is funneled through one
// normalization step before it touches the session, and termination is a
// guarded transition, so duplicate drop/dragend signals collapse into a
// single commit or cancel.
package drag

import (
	"sync"
	"time"

	appLog "slotcal/internal/log"
	"slotcal/internal/model"
)

// DefaultThrottle bounds projection updates to roughly 30 per second.
const DefaultThrottle = 32 * time.Millisecond

// State is the tracker lifecycle state.
type State int

const (
	Idle State = iota
	// Armed is a started gesture that has not seen a position update yet.
	Armed
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Dragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Source identifies where a position signal came from.
type Source int

const (
	SourceElement Source = iota
	SourceCell
	SourceDocument
)

func (s Source) String() string {
	switch s {
	case SourceElement:
		return "element"
	case SourceCell:
		return "cell"
	case SourceDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Termination identifies which signal ended a gesture.
type Termination int

const (
	TermDrop Termination = iota
	TermElementDragEnd
	TermDocumentDragEnd
	TermDocumentDrop
	// TermTeardown cancels without committing.
	TermTeardown
)

func (t Termination) String() string {
	switch t {
	case TermDrop:
		return "drop"
	case TermElementDragEnd:
		return "element-dragend"
	case TermDocumentDragEnd:
		return "document-dragend"
	case TermDocumentDrop:
		return "document-drop"
	case TermTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// PositionSignal is one raw pointer-move notification.
type PositionSignal struct {
	Source   Source
	Date     time.Time
	X, Y     float64
	HasPoint bool
}

// DateResolver maps pointer coordinates to the calendar date under them.
type DateResolver interface {
	DateAt(x, y float64) (time.Time, bool)
}

// ResolverFunc adapts a function to DateResolver.
type ResolverFunc func(x, y float64) (time.Time, bool)

func (f ResolverFunc) DateAt(x, y float64) (time.Time, bool) {
	return f(x, y)
}

// RelocateFunc receives the committed move of a gesture.
type RelocateFunc func(ev model.Event, newStart, newEnd time.Time)

// Options configures a Tracker.
type Options struct {
	// Lookup resolves an event id against the live event list.
	Lookup func(id string) (model.Event, bool)
	// OnRelocate is called at most once per gesture, when the net day
	// offset is non-zero.
	OnRelocate RelocateFunc
	// OnProjection is called whenever the render projection changes.
	OnProjection func(Projection)
	// Document receives gesture-scoped listeners. Optional.
	Document Target
	// Resolver handles coordinate-only signals. Optional.
	Resolver DateResolver
	Throttle time.Duration
	Now      func() time.Time
}

// Session is the source of truth for an active gesture.
type Session struct {
	EventID string
	// Original is the event as it was when the gesture started. The commit
	// shifts its boundaries, whatever snapshots arrive in between.
	Original model.Event
	Anchor   time.Time
	Current  time.Time
}

// DayOffset is the number of days between the anchor and the current date.
func (s Session) DayOffset() int {
	if s.Anchor.IsZero() || s.Current.IsZero() {
		return 0
	}
	return model.DaysBetween(s.Current, s.Anchor)
}

// Tracker owns one gesture at a time. All methods are safe for concurrent
// use; callbacks run without the tracker lock held.
type Tracker struct {
	opts Options

	mu      sync.Mutex
	state   State
	closed  bool
	session Session
	// releases detach the document listeners of the active gesture.
	releases []func()

	// Throttled render state, derived from session.
	proj          Projection
	lastApplied   time.Time
	lastAppliedAt time.Time
}

// NewTracker returns an idle tracker.
func NewTracker(opts Options) *Tracker {
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{opts: opts}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Session returns the active session, if any.
func (t *Tracker) Session() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session, t.state != Idle
}

// Projection returns the last applied render projection.
func (t *Tracker) Projection() Projection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.proj
}

// Start begins a gesture for eventID anchored at anchor. A gesture already
// in progress is cancelled first. It reports whether a session was created.
func (t *Tracker) Start(eventID string, anchor time.Time) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if t.state != Idle {
		appLog.Debug("drag: restarting active gesture", "event_id", t.session.EventID)
		t.resetLocked()
	}
	if eventID == "" || anchor.IsZero() {
		t.mu.Unlock()
		return false
	}
	original := model.Event{ID: eventID}
	if t.opts.Lookup != nil {
		ev, ok := t.opts.Lookup(eventID)
		if !ok {
			t.mu.Unlock()
			appLog.Debug("drag: start for unknown event ignored", "event_id", eventID)
			return false
		}
		original = ev
	}

	anchor = model.StartOfDay(anchor)
	now := t.opts.Now()
	t.session = Session{EventID: eventID, Original: original, Anchor: anchor, Current: anchor}
	t.state = Armed
	t.lastApplied = anchor
	t.lastAppliedAt = now
	t.proj = Projection{Active: true, EventID: eventID, Target: anchor}
	t.attachLocked()
	proj := t.proj
	t.mu.Unlock()

	appLog.Debug("drag: start", "event_id", eventID, "anchor", model.DateKey(anchor))
	t.notify(proj)
	return true
}

// attachLocked registers the document-level fallbacks for the gesture.
func (t *Tracker) attachLocked() {
	doc := t.opts.Document
	if doc == nil {
		return
	}
	t.releases = append(t.releases,
		doc.Listen(KindDragOver, func(ev DOMEvent) {
			t.Position(PositionSignal{Source: SourceDocument, Date: ev.Date, X: ev.X, Y: ev.Y, HasPoint: ev.HasPoint})
		}),
		doc.Listen(KindDragEnd, func(DOMEvent) {
			t.End(TermDocumentDragEnd)
		}),
		doc.Listen(KindDrop, func(ev DOMEvent) {
			t.dropWith(ev.Date, TermDocumentDrop)
		}),
	)
}

func (t *Tracker) releaseLocked() {
	for _, release := range t.releases {
		release()
	}
	t.releases = nil
}

// resetLocked returns to Idle and discards all gesture state.
func (t *Tracker) resetLocked() {
	t.releaseLocked()
	t.state = Idle
	t.session = Session{}
	t.proj = Projection{}
	t.lastApplied = time.Time{}
	t.lastAppliedAt = time.Time{}
}

// normalize turns any raw position signal into a calendar date.
func (t *Tracker) normalize(sig PositionSignal) (time.Time, bool) {
	if !sig.Date.IsZero() {
		return model.StartOfDay(sig.Date), true
	}
	if sig.HasPoint && t.opts.Resolver != nil {
		if d, ok := t.opts.Resolver.DateAt(sig.X, sig.Y); ok && !d.IsZero() {
			return model.StartOfDay(d), true
		}
	}
	return time.Time{}, false
}

// Position applies a pointer-move signal. The session is updated
// synchronously; the projection is re-derived immediately when the date
// changed and at most once per throttle interval otherwise. It reports
// whether the projection was re-derived.
func (t *Tracker) Position(sig PositionSignal) bool {
	t.mu.Lock()
	if t.state == Idle {
		t.mu.Unlock()
		return false
	}
	date, ok := t.normalize(sig)
	if !ok {
		t.mu.Unlock()
		return false
	}

	t.session.Current = date
	if t.state == Armed {
		t.state = Dragging
	}

	now := t.opts.Now()
	if model.SameDay(date, t.lastApplied) && now.Sub(t.lastAppliedAt) < t.opts.Throttle {
		t.mu.Unlock()
		return false
	}
	t.lastApplied = date
	t.lastAppliedAt = now
	t.proj = Projection{
		Active:    true,
		EventID:   t.session.EventID,
		DayOffset: t.session.DayOffset(),
		Target:    date,
	}
	proj := t.proj
	t.mu.Unlock()

	t.notify(proj)
	return true
}

// Drop ends the gesture with an explicit drop on date. A zero date keeps the
// last observed position.
func (t *Tracker) Drop(date time.Time) bool {
	return t.dropWith(date, TermDrop)
}

func (t *Tracker) dropWith(date time.Time, kind Termination) bool {
	if !date.IsZero() {
		t.mu.Lock()
		if t.state != Idle {
			t.session.Current = model.StartOfDay(date)
		}
		t.mu.Unlock()
	}
	return t.End(kind)
}

// End terminates the active gesture. Only the first termination of a
// gesture has any effect; it reports whether this call was that one.
func (t *Tracker) End(kind Termination) bool {
	t.mu.Lock()
	if t.state == Idle {
		t.mu.Unlock()
		return false
	}
	sess := t.session
	t.resetLocked()
	t.mu.Unlock()

	t.notify(Projection{})
	t.commit(sess, kind)
	return true
}

// Close tears the tracker down: an active gesture is cancelled, its
// listeners are released and later Start calls are refused.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.End(TermTeardown)
}

func (t *Tracker) commit(sess Session, kind Termination) {
	if kind == TermTeardown {
		appLog.Debug("drag: cancelled by teardown", "event_id", sess.EventID)
		return
	}
	if sess.EventID == "" || sess.Anchor.IsZero() || sess.Current.IsZero() {
		appLog.Debug("drag: cancelled, incomplete session", "event_id", sess.EventID, "signal", kind.String())
		return
	}
	offset := sess.DayOffset()
	if offset == 0 {
		appLog.Debug("drag: no movement", "event_id", sess.EventID, "signal", kind.String())
		return
	}
	if t.opts.Lookup == nil || t.opts.OnRelocate == nil {
		return
	}
	if _, ok := t.opts.Lookup(sess.EventID); !ok {
		appLog.Debug("drag: cancelled, event vanished", "event_id", sess.EventID)
		return
	}
	ev := sess.Original
	moved := model.MoveByDays(ev, offset)
	appLog.Info("drag: relocate",
		"event_id", ev.ID,
		"offset_days", offset,
		"signal", kind.String(),
		"new_start", moved.Start.Format(time.RFC3339),
		"new_end", moved.End.Format(time.RFC3339),
	)
	t.opts.OnRelocate(ev, moved.Start, moved.End)
}

func (t *Tracker) notify(p Projection) {
	if t.opts.OnProjection != nil {
		t.opts.OnProjection(p)
	}
}
