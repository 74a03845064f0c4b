// Package view owns the authoritative event list, the connection state and
// the creation selection, and wires them to the timeslot service.
//
// Relocations are eventually consistent: the update request is sent, and a
// full refetch follows after a fixed delay. The local list is never
// mutated optimistically.
package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "slotcal/internal/log"
	"slotcal/internal/model"
	"slotcal/internal/reconcile"
	"slotcal/internal/remote"
)

var (
	// ErrDisconnected is returned by mutations attempted without a connection.
	ErrDisconnected = errors.New("view: disconnected")
	ErrClosed       = errors.New("view: closed")
	// ErrDateUnavailable rejects selections that cover a blocked date.
	ErrDateUnavailable = errors.New("view: date unavailable")
	ErrBeforeMinDate   = errors.New("view: before minimum date")
)

const (
	DefaultRefetchDelay = 500 * time.Millisecond
	requestTimeout      = 10 * time.Second
	expandHorizon       = 12 // months ahead of now
)

// FeedLoader supplies busy events from external calendars.
type FeedLoader interface {
	Load(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// Service is the connection-management collaborator.
type Service interface {
	Connect(ctx context.Context, url string) error
	Disconnect() error
	FetchEventsFor(ctx context.Context, userID, projectID string) error
	Subscribe(fn func(payload []byte)) (unsubscribe func())
	OnStatus(fn func(connected bool)) (unsubscribe func())
	Relocate(ctx context.Context, req remote.RelocateRequest) error
}

type Options struct {
	URL       string
	UserID    string
	ProjectID string
	Location  *time.Location
	// RefetchDelay separates a relocate request from the refetch that
	// follows it.
	RefetchDelay time.Duration
	// Refresh is a cron spec for periodic resync. Empty disables it.
	Refresh   string
	Blackouts []reconcile.Blackout
	// Feeds, if set, is loaded on Start and on every resync.
	Feeds FeedLoader
	// MinDate bounds selections. Zero means unbounded.
	MinDate time.Time
	// MinDateToday also rejects selections before the current day, as
	// reported by Now at the time of the call.
	MinDateToday bool
	Now          func() time.Time
}

// Selection is the creation date range, whole days in the display zone.
type Selection struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s Selection) IsZero() bool { return s.Start.IsZero() }

// State is an immutable snapshot handed to renderers.
type State struct {
	Events      []model.Event
	Disabled    reconcile.DisabledIndex
	Diagnostics []reconcile.Diagnostic
	Selection   Selection
	Connected   bool
	Version     uint64
	UpdatedAt   time.Time
}

// View is safe for concurrent use. Change listeners run without the lock.
type View struct {
	svc  Service
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cron.Cron

	mu          sync.RWMutex
	started     bool
	closed      bool
	connected   bool
	remote      []model.Event // last reconciled server snapshot
	feed        []model.Event
	all         []model.Event // remote plus feeds and expanded blackouts
	disabled    reconcile.DisabledIndex
	payloadDiag []reconcile.Diagnostic
	diagnostics []reconcile.Diagnostic
	blackouts   *reconcile.BlackoutSet
	selection   Selection
	version     uint64
	updatedAt   time.Time
	refetch     *time.Timer
	unsubs      []func()
	nextID      int
	listeners   map[int]func(State)

	synced   chan struct{}
	syncOnce sync.Once
}

func New(svc Service, opts Options) *View {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.RefetchDelay <= 0 {
		opts.RefetchDelay = DefaultRefetchDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		svc:       svc,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(State)),
		synced:    make(chan struct{}),
		blackouts: reconcile.CompileBlackouts(opts.Blackouts, opts.Location),
	}
	v.mu.Lock()
	v.rebuildLocked()
	v.mu.Unlock()
	return v
}

// Start subscribes to inbound payloads, connects and fetches. A failed
// connect is returned but leaves the view usable in disconnected mode.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.started {
		v.mu.Unlock()
		return nil
	}
	v.started = true
	v.unsubs = append(v.unsubs,
		v.svc.Subscribe(v.handlePayload),
		v.svc.OnStatus(v.setConnected),
	)
	v.mu.Unlock()

	if v.opts.Refresh != "" {
		c := cron.New(cron.WithLocation(v.opts.Location))
		if _, err := c.AddFunc(v.opts.Refresh, v.resync); err != nil {
			return fmt.Errorf("add resync %q: %w", v.opts.Refresh, err)
		}
		c.Start()
		v.mu.Lock()
		v.cron = c
		v.mu.Unlock()
	}

	v.loadFeeds()
	return v.connect(ctx)
}

// loadFeeds refreshes feed events in the background.
func (v *View) loadFeeds() {
	if v.opts.Feeds == nil {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		from, to := v.window()
		ctx, cancel := context.WithTimeout(v.ctx, time.Minute)
		events, err := v.opts.Feeds.Load(ctx, from, to)
		cancel()
		if err != nil {
			appLog.Error("view: feed load incomplete", err, "busy", len(events))
		}
		v.SetFeedEvents(events)
	}()
}

// SetFeedEvents replaces the busy events contributed by feeds.
func (v *View) SetFeedEvents(events []model.Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.feed = events
	v.rebuildLocked()
	st := v.stateLocked()
	v.mu.Unlock()
	v.notify(st)
}

func (v *View) connect(ctx context.Context) error {
	if err := v.svc.Connect(ctx, v.opts.URL); err != nil {
		appLog.Error("view: connect failed", err)
		v.setConnected(false)
		return fmt.Errorf("connect: %w", err)
	}
	v.setConnected(true)
	return nil
}

// setConnected records a connection change and fetches on connect.
func (v *View) setConnected(up bool) {
	v.mu.Lock()
	if v.closed || v.connected == up {
		v.mu.Unlock()
		return
	}
	v.connected = up
	v.bumpLocked()
	st := v.stateLocked()
	v.mu.Unlock()

	appLog.Info("view: connection changed", "connected", up)
	v.notify(st)
	if up {
		if err := v.Refetch(v.ctx); err != nil {
			appLog.Error("view: fetch on connect failed", err)
		}
	}
}

// resync runs on the refresh schedule.
func (v *View) resync() {
	v.loadFeeds()
	if v.Connected() {
		if err := v.Refetch(v.ctx); err != nil {
			appLog.Error("view: scheduled refetch failed", err)
		}
		return
	}
	appLog.Debug("view: reconnecting")
	_ = v.connect(v.ctx)
}

// Refetch asks the service for a fresh snapshot. The result arrives
// through the subscription.
func (v *View) Refetch(ctx context.Context) error {
	if !v.Connected() {
		return ErrDisconnected
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := v.svc.FetchEventsFor(ctx, v.opts.UserID, v.opts.ProjectID); err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	return nil
}

func (v *View) handlePayload(payload []byte) {
	snap := reconcile.Reconcile(payload, v.opts.Location)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.remote = snap.Events
	v.payloadDiag = snap.Diagnostics
	v.rebuildLocked()
	st := v.stateLocked()
	v.mu.Unlock()

	appLog.Debug("view: snapshot applied", "rule", snap.Rule, "events", len(snap.Events),
		"dropped", len(snap.Diagnostics), "version", st.Version)
	v.notify(st)
	v.syncOnce.Do(func() { close(v.synced) })
}

// Synced is closed once the first server snapshot has been applied.
func (v *View) Synced() <-chan struct{} {
	return v.synced
}

// window is the range over which blackouts and feeds are expanded.
func (v *View) window() (time.Time, time.Time) {
	now := v.opts.Now().In(v.opts.Location)
	from := model.StartOfDay(now).AddDate(0, -1, 0)
	return from, from.AddDate(0, expandHorizon+1, 0)
}

// rebuildLocked derives the merged list and the disabled index.
func (v *View) rebuildLocked() {
	from, to := v.window()
	blackouts := v.blackouts.Expand(from, to)

	all := make([]model.Event, 0, len(v.remote)+len(v.feed)+len(blackouts))
	all = append(all, v.remote...)
	all = append(all, v.feed...)
	all = append(all, blackouts...)
	v.all = all
	v.disabled = reconcile.BuildDisabledIndex(all)
	v.diagnostics = append(slices.Clone(v.payloadDiag), v.blackouts.Diagnostics()...)
	v.bumpLocked()
}

func (v *View) bumpLocked() {
	v.version++
	v.updatedAt = v.opts.Now()
}

func (v *View) stateLocked() State {
	return State{
		Events:      v.all,
		Disabled:    v.disabled,
		Diagnostics: v.diagnostics,
		Selection:   v.selection,
		Connected:   v.connected,
		Version:     v.version,
		UpdatedAt:   v.updatedAt,
	}
}

// State returns the current snapshot. Events must be treated as read-only.
func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stateLocked()
}

// Events returns the current list: remote events, feed events and blackouts.
func (v *View) Events() []model.Event {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.all
}

func (v *View) Disabled() reconcile.DisabledIndex {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.disabled
}

func (v *View) Connected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

// Lookup finds a server event by id. Feed events and blackouts are not
// movable.
func (v *View) Lookup(id string) (model.Event, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, ev := range v.remote {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

// Relocate sends the committed move of ev and schedules a refetch. It does
// not wait for the service to apply the change.
func (v *View) Relocate(ev model.Event, start, end time.Time) error {
	v.mu.Lock()
	switch {
	case v.closed:
		v.mu.Unlock()
		return ErrClosed
	case !v.connected:
		v.mu.Unlock()
		appLog.Warn("view: relocate refused while disconnected", "event_id", ev.ID)
		return ErrDisconnected
	}
	v.wg.Add(1)
	v.mu.Unlock()

	req := remote.RelocateRequest{
		EventID:   ev.ID,
		ProjectID: v.opts.ProjectID,
		UserID:    v.opts.UserID,
		Start:     start,
		End:       end,
		Notes:     ev.Notes,
		Status:    string(ev.Status),
	}
	go func() {
		defer v.wg.Done()
		ctx, cancel := context.WithTimeout(v.ctx, requestTimeout)
		err := v.svc.Relocate(ctx, req)
		cancel()
		if err != nil {
			appLog.Error("view: relocate failed", err, "event_id", ev.ID)
		} else {
			appLog.Info("view: relocate sent", "event_id", ev.ID,
				"start", model.DateKey(start), "end", model.DateKey(end))
		}
		// The refetch also restores server state after a failure.
		v.scheduleRefetch()
	}()
	return nil
}

// scheduleRefetch coalesces refetches requested within one delay window.
func (v *View) scheduleRefetch() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.refetch != nil {
		v.refetch.Stop()
	}
	v.refetch = time.AfterFunc(v.opts.RefetchDelay, func() {
		if err := v.Refetch(v.ctx); err != nil {
			appLog.Warn("view: refetch after relocate failed", "err", err)
		}
	})
}

// minDate is the first selectable day, zero when unbounded.
func (v *View) minDate() time.Time {
	loc := v.opts.Location
	var min time.Time
	if !v.opts.MinDate.IsZero() {
		min = model.StartOfDay(v.opts.MinDate.In(loc))
	}
	if v.opts.MinDateToday {
		if today := model.StartOfDay(v.opts.Now().In(loc)); today.After(min) {
			min = today
		}
	}
	return min
}

// SetSelection normalizes the range to whole days, ordering the bounds.
// A range starting before the minimum date or covering a blocked date is
// rejected.
func (v *View) SetSelection(start, end time.Time) (Selection, error) {
	loc := v.opts.Location
	start, end = start.In(loc), end.In(loc)
	if end.Before(start) {
		start, end = end, start
	}
	sel := Selection{Start: model.StartOfDay(start), End: model.EndOfDay(end)}
	if min := v.minDate(); !min.IsZero() && sel.Start.Before(min) {
		return Selection{}, ErrBeforeMinDate
	}

	v.mu.Lock()
	for d := sel.Start; !d.After(sel.End); d = d.AddDate(0, 0, 1) {
		if v.disabled.Contains(d) {
			v.mu.Unlock()
			return Selection{}, fmt.Errorf("%w: %s", ErrDateUnavailable, model.DateKey(d))
		}
	}
	v.selection = sel
	v.bumpLocked()
	st := v.stateLocked()
	v.mu.Unlock()

	v.notify(st)
	return sel, nil
}

func (v *View) ClearSelection() {
	v.mu.Lock()
	if v.selection.IsZero() {
		v.mu.Unlock()
		return
	}
	v.selection = Selection{}
	v.bumpLocked()
	st := v.stateLocked()
	v.mu.Unlock()
	v.notify(st)
}

// OnChange registers fn for every new state.
func (v *View) OnChange(fn func(State)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

func (v *View) notify(st State) {
	v.mu.RLock()
	fns := make([]func(State), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.RUnlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Close stops scheduling, waits for in-flight relocations and disconnects.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	if v.refetch != nil {
		v.refetch.Stop()
	}
	unsubs, c := v.unsubs, v.cron
	v.unsubs = nil
	v.mu.Unlock()

	v.cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	for _, u := range unsubs {
		u()
	}
	v.wg.Wait()
	return v.svc.Disconnect()
}
