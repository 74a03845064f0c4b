package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"slotcal/internal/config"
	"slotcal/internal/remote"
	"slotcal/internal/view"
)

var fixedNow = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func seedSlots() []remote.Timeslot {
	return []remote.Timeslot{
		{ID: "1", Title: "Shoot", Status: "available",
			StartTime: time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC), EndTime: time.Date(2025, 4, 12, 18, 0, 0, 0, time.UTC),
			User: &remote.User{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}},
		{ID: "2", Title: "Vacation", Status: "busy",
			StartTime: time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC), EndTime: time.Date(2025, 4, 22, 0, 0, 0, 0, time.UTC)},
	}
}

type stack struct {
	dev  *remote.DevServer
	view *view.View
	web  *httptest.Server
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.VisibleMonths = 1
	cfg.Normalize()
	return cfg
}

// newStack wires a dev timeslot service, a connected view and the web
// server. connect=false leaves the view offline.
func newStack(t *testing.T, cfg *config.Config, connect bool) *stack {
	t.Helper()
	dev := remote.NewDevServer(seedSlots())
	devSrv := httptest.NewServer(dev)
	t.Cleanup(devSrv.Close)

	v := view.New(remote.NewClient(), view.Options{
		URL:          devSrv.URL,
		Location:     time.UTC,
		RefetchDelay: 20 * time.Millisecond,
		Now:          func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { v.Close() })
	if connect {
		if err := v.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		eventually(t, "initial snapshot", func() bool { return len(v.Events()) == 2 })
	}

	s := NewServer(cfg, v, time.UTC)
	s.now = func() time.Time { return fixedNow }
	web := httptest.NewServer(s.Handler())
	t.Cleanup(web.Close)
	return &stack{dev: dev, view: v, web: web}
}

// dialPage opens a page session and drains its messages into a channel.
func dialPage(t *testing.T, st *stack) (*websocket.Conn, <-chan serverMsg) {
	t.Helper()
	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(st.web.URL, "http")+"/ws/page", nil)
	if err != nil {
		t.Fatalf("dial page session: %v", err)
	}
	conn.SetReadLimit(sessionReadLimit)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	msgs := make(chan serverMsg, 256)
	go func() {
		for {
			var m serverMsg
			if err := wsjson.Read(ctx, conn, &m); err != nil {
				close(msgs)
				return
			}
			select {
			case msgs <- m:
			default:
			}
		}
	}()
	return conn, msgs
}

func send(t *testing.T, conn *websocket.Conn, msg clientMsg) {
	t.Helper()
	if err := wsjson.Write(context.Background(), conn, msg); err != nil {
		t.Fatalf("send %s: %v", msg.Type, err)
	}
}

func waitMsg(t *testing.T, msgs <-chan serverMsg, match func(serverMsg) bool) serverMsg {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				t.Fatalf("page session closed")
			}
			if match(m) {
				return m
			}
		case <-timeout:
			t.Fatalf("timed out waiting for message")
		}
	}
}

func TestPageSessionDragRelocates(t *testing.T) {
	st := newStack(t, testConfig(), true)
	conn, msgs := dialPage(t, st)

	first := waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outGrid })
	if !first.Connected || !strings.Contains(first.HTML, `data-event-id="1"`) || !strings.Contains(first.HTML, `draggable="true"`) {
		t.Fatalf("initial grid not draggable:\n%s", first.HTML)
	}

	send(t, conn, clientMsg{Type: msgDragStart, EventID: "1", Date: "2025-04-11"})
	send(t, conn, clientMsg{Type: msgDragOver, Date: "2025-04-12"})
	send(t, conn, clientMsg{Type: msgDragOver, Date: "2025-04-14"})
	waitMsg(t, msgs, func(m serverMsg) bool {
		return m.Type == outGrid && strings.Contains(m.HTML, "drop-target")
	})
	send(t, conn, clientMsg{Type: msgDrop, Date: "2025-04-14"})
	// Redundant terminations from the element and the document.
	send(t, conn, clientMsg{Type: msgDragEnd})
	send(t, conn, clientMsg{Type: msgDocDragEnd})

	want := time.Date(2025, 4, 13, 9, 0, 0, 0, time.UTC)
	eventually(t, "relocation on the service", func() bool {
		ts, _ := st.dev.Get("1")
		return ts.StartTime.Equal(want) && ts.EndTime.Equal(time.Date(2025, 4, 15, 18, 0, 0, 0, time.UTC))
	})
	eventually(t, "refetched view", func() bool {
		ev, ok := st.view.Lookup("1")
		return ok && ev.Start.Equal(want)
	})
}

func TestPageSessionCoordinateFallback(t *testing.T) {
	st := newStack(t, testConfig(), true)
	conn, msgs := dialPage(t, st)
	waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outGrid })

	send(t, conn, clientMsg{Type: msgLayout, Cells: []cellRect{
		{Date: "2025-04-10", X: 0, Y: 0, W: 100, H: 100},
		{Date: "2025-04-16", X: 100, Y: 0, W: 100, H: 100},
	}})
	send(t, conn, clientMsg{Type: msgDragStart, EventID: "1", Date: "2025-04-10"})
	send(t, conn, clientMsg{Type: msgDocDragOver, X: 150, Y: 50, HasPoint: true})
	send(t, conn, clientMsg{Type: msgDocDrop, X: 500, Y: 500, HasPoint: true})

	want := time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC)
	eventually(t, "relocation by coordinates", func() bool {
		ts, _ := st.dev.Get("1")
		return ts.StartTime.Equal(want)
	})
}

func TestPageSessionCancelWithoutMovement(t *testing.T) {
	st := newStack(t, testConfig(), true)
	conn, msgs := dialPage(t, st)
	waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outGrid })

	send(t, conn, clientMsg{Type: msgDragStart, EventID: "1", Date: "2025-04-10"})
	send(t, conn, clientMsg{Type: msgDragOver, Date: "2025-04-10"})
	send(t, conn, clientMsg{Type: msgDragEnd})
	// Unknown event ids never start a gesture.
	send(t, conn, clientMsg{Type: msgDragStart, EventID: "missing", Date: "2025-04-10"})
	send(t, conn, clientMsg{Type: msgDrop, Date: "2025-04-18"})
	send(t, conn, clientMsg{Type: msgPopover, Date: "2025-04-21"})
	waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outPopover })

	ts, _ := st.dev.Get("1")
	if !ts.StartTime.Equal(time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("event moved without a net offset: %v", ts.StartTime)
	}
}

func TestPageSessionPopover(t *testing.T) {
	st := newStack(t, testConfig(), true)
	conn, msgs := dialPage(t, st)
	waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outGrid })

	send(t, conn, clientMsg{Type: msgPopover, Date: "2025-04-21"})
	m := waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outPopover })
	if m.Date != "2025-04-21" || !strings.Contains(m.HTML, "Vacation") {
		t.Fatalf("unexpected popover %+v", m)
	}

	send(t, conn, clientMsg{Type: msgPopoverClose})
	m = waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outPopoverClose })
	if m.Date != "2025-04-21" {
		t.Fatalf("closed wrong popover %+v", m)
	}
}

func TestPageSessionOfflineIsReadOnly(t *testing.T) {
	st := newStack(t, testConfig(), false)

	resp, err := http.Get(st.web.URL + "/calendar")
	if err != nil {
		t.Fatalf("GET /calendar: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.Contains(string(body), `draggable="true"`) {
		t.Fatalf("offline page must not be draggable (status %d)", resp.StatusCode)
	}
	if !strings.Contains(string(body), "April 2025") {
		t.Fatalf("month title missing")
	}

	conn, msgs := dialPage(t, st)
	waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outGrid })
	send(t, conn, clientMsg{Type: msgDragStart, EventID: "1", Date: "2025-04-10"})
	m := waitMsg(t, msgs, func(m serverMsg) bool { return m.Type == outNotice })
	if m.Connected {
		t.Fatalf("notice should report offline")
	}
}

func TestAPIEndpoints(t *testing.T) {
	st := newStack(t, testConfig(), true)

	resp, err := http.Get(st.web.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	var events eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if !events.Connected || len(events.Events) != 2 || len(events.Disabled) != 1 || events.Disabled[0].EventID != "2" {
		t.Fatalf("unexpected events response %+v", events)
	}

	for path, want := range map[string]int{
		"/api/popover?date=2025-04-21": http.StatusOK,
		"/api/popover?date=2025-04-10": http.StatusNotFound,
		"/api/popover?date=tomorrow":   http.StatusBadRequest,
		"/health":                      http.StatusOK,
		"/static/gesture.js":           http.StatusOK,
	} {
		resp, err := http.Get(st.web.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}

	resp, err = http.Get(st.web.URL + "/calendar.ics")
	if err != nil {
		t.Fatalf("GET /calendar.ics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "BEGIN:VCALENDAR") || !strings.Contains(string(body), "1@slotcal.local") {
		t.Fatalf("unexpected ics export:\n%s", body)
	}
}

func TestSelectionEndpoint(t *testing.T) {
	st := newStack(t, testConfig(), true)
	post := func(body string) int {
		t.Helper()
		resp, err := http.Post(st.web.URL+"/api/selection", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /api/selection: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := post(`{"start":"2025-04-12","end":"2025-04-11"}`); got != http.StatusOK {
		t.Fatalf("valid selection = %d", got)
	}
	sel := st.view.State().Selection
	if !sel.Start.Equal(time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bounds not ordered: %+v", sel)
	}
	if got := post(`{"start":"2025-04-19","end":"2025-04-21"}`); got != http.StatusConflict {
		t.Fatalf("selection over a busy date = %d", got)
	}
	if got := post(`{"start":"nope"}`); got != http.StatusBadRequest {
		t.Fatalf("bad date = %d", got)
	}

	req, _ := http.NewRequest(http.MethodDelete, st.web.URL+"/api/selection", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /api/selection: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || !st.view.State().Selection.IsZero() {
		t.Fatalf("selection not cleared")
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	st := newStack(t, cfg, false)

	resp, err := http.Get(st.web.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health should bypass auth, got %d", resp.StatusCode)
	}

	resp, err = http.Get(st.web.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected 401 with challenge, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, st.web.URL+"/api/events", nil)
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized request = %d", resp.StatusCode)
	}
}

func TestLayoutResolver(t *testing.T) {
	l := newLayoutResolver(time.UTC)
	n := l.Set([]cellRect{
		{Date: "2025-04-01", X: 0, Y: 0, W: 50, H: 50},
		{Date: "bad", X: 50, Y: 0, W: 50, H: 50},
		{Date: "2025-04-02", X: 50, Y: 0, W: 0, H: 50},
		{Date: "2025-04-03", X: 100, Y: 0, W: 50, H: 50},
	})
	if n != 2 {
		t.Fatalf("kept %d rects, want 2", n)
	}
	if d, ok := l.DateAt(120, 10); !ok || d.Day() != 3 {
		t.Fatalf("DateAt(120,10) = %v %v", d, ok)
	}
	if _, ok := l.DateAt(75, 10); ok {
		t.Fatalf("gap should not resolve")
	}
	if _, ok := l.DateAt(50, 10); ok {
		t.Fatalf("right edge is exclusive")
	}
}
