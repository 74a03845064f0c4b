// Package remote is the connection to the timeslot service: a websocket
// that carries fetch and relocate requests out and snapshot payloads in.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	appLog "slotcal/internal/log"
)

// ErrNotConnected is returned by requests made without a live connection.
var ErrNotConnected = errors.New("remote: not connected")

const (
	dialTimeout = 10 * time.Second
	readLimit   = 4 << 20
)

// Client is a reconnectable websocket client. Payload and status handlers
// run on the read goroutine.
type Client struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	next     int
	payloads map[int]func([]byte)
	statuses map[int]func(bool)
}

func NewClient() *Client {
	return &Client{
		payloads: make(map[int]func([]byte)),
		statuses: make(map[int]func(bool)),
	}
}

// wsURL converts http(s) URLs to ws(s).
func wsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Connect dials rawURL. Connecting while connected is a no-op.
func (c *Client) Connect(ctx context.Context, rawURL string) error {
	target, err := wsURL(rawURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, target, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(readLimit)

	readCtx, readCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = readCancel
	c.mu.Unlock()

	appLog.Info("remote: connected", "url", redactURL(target))
	c.emitStatus(true)
	go c.readLoop(readCtx, conn)
	return nil
}

// Disconnect closes the connection if open.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	err := conn.Close(websocket.StatusNormalClosure, "closing")
	c.emitStatus(false)
	return err
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribe registers fn for inbound snapshot payloads.
func (c *Client) Subscribe(fn func(payload []byte)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.payloads[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.payloads, id)
		c.mu.Unlock()
	}
}

// OnStatus registers fn for connection state changes.
func (c *Client) OnStatus(fn func(connected bool)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.statuses[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.statuses, id)
		c.mu.Unlock()
	}
}

// FetchEventsFor asks the service to push the timeslots of a user/project.
func (c *Client) FetchEventsFor(ctx context.Context, userID, projectID string) error {
	_, err := c.send(ctx, TypeFetchTimeslots, FetchRequest{UserID: userID, ProjectID: projectID})
	return err
}

// Relocate sends an update request. The reply is only logged.
func (c *Client) Relocate(ctx context.Context, req RelocateRequest) error {
	id, err := c.send(ctx, TypeUpdateTimeslot, req)
	if err != nil {
		return err
	}
	appLog.Debug("remote: relocate sent", "request_id", id, "event_id", req.EventID)
	return nil
}

func (c *Client) send(ctx context.Context, typ string, payload any) (string, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return "", ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", typ, err)
	}
	frame := Frame{Type: typ, ID: uuid.NewString(), Payload: body}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return "", fmt.Errorf("write %s: %w", typ, err)
	}
	return frame.ID, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.dropped(conn, err)
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			appLog.Warn("remote: skipping malformed frame", "err", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	switch frame.Type {
	case TypeTimeslots:
		c.mu.Lock()
		handlers := make([]func([]byte), 0, len(c.payloads))
		for _, h := range c.payloads {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()
		for _, h := range handlers {
			h(frame.Payload)
		}
	case TypeTimeslotUpdated:
		appLog.Info("remote: timeslot updated", "request_id", frame.ID)
	case TypeError:
		var p ErrorPayload
		_ = json.Unmarshal(frame.Payload, &p)
		appLog.Error("remote: service error", errors.New(p.Message), "request_id", frame.ID)
	default:
		appLog.Debug("remote: ignoring frame", "type", frame.Type)
	}
}

// dropped handles a read failure. A failure after Disconnect is expected.
func (c *Client) dropped(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
	}
	c.mu.Unlock()
	if !current {
		return
	}
	appLog.Error("remote: connection lost", err)
	_ = conn.Close(websocket.StatusInternalError, "read failed")
	c.emitStatus(false)
}

func (c *Client) emitStatus(connected bool) {
	c.mu.Lock()
	handlers := make([]func(bool), 0, len(c.statuses))
	for _, h := range c.statuses {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(connected)
	}
}

// redactURL keeps only scheme and host for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ws://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
