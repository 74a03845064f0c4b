package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"slotcal/internal/drag"
	appLog "slotcal/internal/log"
	"slotcal/internal/model"
	"slotcal/internal/popover"
	"slotcal/internal/view"
)

const (
	sessionReadLimit = 1 << 20
	noticeBuffer     = 8
)

// Client to server message types.
const (
	msgLayout        = "layout"
	msgDragStart     = "dragstart"
	msgDrag          = "drag"
	msgDragOver      = "dragover"
	msgDrop          = "drop"
	msgDragEnd       = "dragend"
	msgDocDragOver   = "doc-dragover"
	msgDocDragEnd    = "doc-dragend"
	msgDocDrop       = "doc-drop"
	msgPopover       = "popover"
	msgPopoverClose  = "popover-close"
	msgSelect        = "select"
	msgClearSelected = "clear-selection"
)

// Server to client message types.
const (
	outGrid         = "grid"
	outPopover      = "popover"
	outPopoverClose = "popover-close"
	outNotice       = "notice"
)

type clientMsg struct {
	Type     string     `json:"type"`
	EventID  string     `json:"eventId,omitempty"`
	Date     string     `json:"date,omitempty"`
	End      string     `json:"end,omitempty"`
	X        float64    `json:"x,omitempty"`
	Y        float64    `json:"y,omitempty"`
	HasPoint bool       `json:"hasPoint,omitempty"`
	Cells    []cellRect `json:"cells,omitempty"`
}

type serverMsg struct {
	Type      string `json:"type"`
	HTML      string `json:"html,omitempty"`
	Date      string `json:"date,omitempty"`
	Version   uint64 `json:"version,omitempty"`
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// pageSession is the server half of one open calendar page. It owns the
// page's drag tracker; the page forwards raw drag signals and receives
// re-rendered grids.
type pageSession struct {
	srv     *Server
	conn    *websocket.Conn
	target  *drag.EventTarget
	layout  *layoutResolver
	tracker *drag.Tracker
	pop     *popover.Surface

	dirty   chan struct{}
	notices chan string
}

func newPageSession(s *Server, conn *websocket.Conn) *pageSession {
	p := &pageSession{
		srv:     s,
		conn:    conn,
		target:  drag.NewEventTarget(),
		layout:  newLayoutResolver(s.loc),
		pop:     popover.NewSurface(s.cal, s.loc),
		dirty:   make(chan struct{}, 1),
		notices: make(chan string, noticeBuffer),
	}
	p.tracker = drag.NewTracker(drag.Options{
		Lookup:       s.cal.Lookup,
		OnRelocate:   p.relocate,
		OnProjection: func(drag.Projection) { p.kick() },
		Document:     p.target,
		Resolver:     p.layout,
		Throttle:     s.cfg.DragThrottle,
		Now:          s.now,
	})
	return p
}

func (s *Server) handlePageSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		appLog.Warn("page session: accept failed", "err", err)
		return
	}
	conn.SetReadLimit(sessionReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	p := newPageSession(s, conn)
	unsubscribe := s.cal.OnChange(func(view.State) { p.kick() })
	defer func() {
		unsubscribe()
		p.tracker.Close()
		conn.Close(websocket.StatusNormalClosure, "closing")
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.writeLoop(ctx)
		cancel()
	}()

	appLog.Debug("page session: opened", "remote", r.RemoteAddr)
	p.kick()
	p.readLoop(ctx)
	cancel()
	<-done
	appLog.Debug("page session: closed", "remote", r.RemoteAddr)
}

// kick schedules a re-render. Bursts collapse into one.
func (p *pageSession) kick() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

func (p *pageSession) notice(msg string) {
	select {
	case p.notices <- msg:
	default:
		appLog.Debug("page session: notice dropped", "message", msg)
	}
}

func (p *pageSession) readLoop(ctx context.Context) {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				appLog.Debug("page session: read ended", "err", err)
			}
			return
		}
		var msg clientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			appLog.Debug("page session: malformed message skipped", "err", err)
			continue
		}
		p.handle(msg)
	}
}

// writeLoop is the only writer on the connection.
func (p *pageSession) writeLoop(ctx context.Context) {
	popoverShown := ""
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.notices:
			if err := p.write(ctx, serverMsg{Type: outNotice, Message: msg, Connected: p.srv.cal.State().Connected}); err != nil {
				return
			}
		case <-p.dirty:
			st := p.srv.cal.State()
			html, err := p.srv.renderGrid(st, p.tracker.Projection())
			if err != nil {
				appLog.Error("page session: render grid failed", err)
				continue
			}
			if err := p.write(ctx, serverMsg{Type: outGrid, HTML: html, Version: st.Version, Connected: st.Connected}); err != nil {
				return
			}

			d, ok := p.pop.Current()
			switch {
			case ok:
				body, err := renderPopover(d)
				if err != nil {
					appLog.Error("page session: render popover failed", err)
					continue
				}
				if err := p.write(ctx, serverMsg{Type: outPopover, HTML: body, Date: d.DateKey, Connected: st.Connected}); err != nil {
					return
				}
				popoverShown = d.DateKey
			case popoverShown != "":
				if err := p.write(ctx, serverMsg{Type: outPopoverClose, Date: popoverShown, Connected: st.Connected}); err != nil {
					return
				}
				popoverShown = ""
			}
		}
	}
}

func (p *pageSession) write(ctx context.Context, msg serverMsg) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(wctx, p.conn, msg); err != nil {
		if ctx.Err() == nil {
			appLog.Debug("page session: write failed", "err", err)
		}
		return err
	}
	return nil
}

func (p *pageSession) date(key string) time.Time {
	if key == "" {
		return time.Time{}
	}
	d, err := model.ParseDateKey(key, p.srv.loc)
	if err != nil {
		appLog.Debug("page session: bad date", "date", key)
		return time.Time{}
	}
	return d
}

func (p *pageSession) handle(msg clientMsg) {
	switch msg.Type {
	case msgLayout:
		n := p.layout.Set(msg.Cells)
		appLog.Debug("page session: layout", "cells", n)

	case msgDragStart:
		if !p.srv.cal.State().Connected {
			p.notice("offline: changes are disabled")
			p.kick()
			return
		}
		p.tracker.Start(msg.EventID, p.date(msg.Date))

	case msgDragOver:
		p.tracker.Position(drag.PositionSignal{Source: drag.SourceCell, Date: p.date(msg.Date)})

	case msgDrag:
		p.tracker.Position(drag.PositionSignal{
			Source: drag.SourceElement, Date: p.date(msg.Date),
			X: msg.X, Y: msg.Y, HasPoint: msg.HasPoint,
		})

	case msgDrop:
		p.tracker.Drop(p.date(msg.Date))

	case msgDragEnd:
		p.tracker.End(drag.TermElementDragEnd)

	case msgDocDragOver, msgDocDragEnd, msgDocDrop:
		p.target.Dispatch(drag.DOMEvent{
			Kind: docKinds[msg.Type], Date: p.date(msg.Date),
			X: msg.X, Y: msg.Y, HasPoint: msg.HasPoint,
		})

	case msgPopover:
		if _, ok := p.pop.Open(msg.Date); !ok {
			p.pop.Close()
		}
		p.kick()

	case msgPopoverClose:
		p.pop.Close()
		p.kick()

	case msgSelect:
		start := p.date(msg.Date)
		if start.IsZero() {
			return
		}
		end := p.date(msg.End)
		if end.IsZero() {
			end = start
		}
		if _, err := p.srv.cal.SetSelection(start, end); err != nil {
			p.notice(err.Error())
		}

	case msgClearSelected:
		p.srv.cal.ClearSelection()

	default:
		appLog.Debug("page session: unknown message", "type", msg.Type)
	}
}

var docKinds = map[string]drag.Kind{
	msgDocDragOver: drag.KindDragOver,
	msgDocDragEnd:  drag.KindDragEnd,
	msgDocDrop:     drag.KindDrop,
}

func (p *pageSession) relocate(ev model.Event, start, end time.Time) {
	if err := p.srv.cal.Relocate(ev, start, end); err != nil {
		appLog.Warn("page session: relocate refused", "event_id", ev.ID, "err", err)
		p.notice(err.Error())
	}
}
