package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	appLog "slotcal/internal/log"
)

// Timeslot is the record shape stored by DevServer.
type Timeslot struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    string    `json:"status,omitempty"`
	Color     string    `json:"color,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	User      *User     `json:"user,omitempty"`
}

type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	PhotoURL  string `json:"photoUrl,omitempty"`
}

// DevServer is an in-memory timeslot service speaking the same frames as
// the real one. It is meant for local development and tests.
type DevServer struct {
	mu    sync.Mutex
	slots map[string]Timeslot
	order []string
}

func NewDevServer(seed []Timeslot) *DevServer {
	s := &DevServer{slots: make(map[string]Timeslot)}
	for _, ts := range seed {
		s.Put(ts)
	}
	return s
}

// Put inserts or replaces a timeslot.
func (s *DevServer) Put(ts Timeslot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[ts.ID]; !ok {
		s.order = append(s.order, ts.ID)
	}
	s.slots[ts.ID] = ts
}

// Get returns the stored timeslot with id.
func (s *DevServer) Get(id string) (Timeslot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.slots[id]
	return ts, ok
}

// Timeslots lists slots visible to user/project in insertion order.
// Empty filters match everything.
func (s *DevServer) Timeslots(userID, projectID string) []Timeslot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Timeslot, 0, len(s.order))
	for _, id := range s.order {
		ts := s.slots[id]
		if userID != "" && ts.UserID != "" && ts.UserID != userID {
			continue
		}
		if projectID != "" && ts.ProjectID != "" && ts.ProjectID != projectID {
			continue
		}
		out = append(out, ts)
	}
	return out
}

func (s *DevServer) relocate(req RelocateRequest) (Timeslot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.slots[req.EventID]
	if !ok {
		return Timeslot{}, fmt.Errorf("timeslot %q not found", req.EventID)
	}
	if req.End.Before(req.Start) {
		return Timeslot{}, fmt.Errorf("timeslot %q: end before start", req.EventID)
	}
	ts.StartTime, ts.EndTime = req.Start, req.End
	if req.Notes != "" {
		ts.Notes = req.Notes
	}
	if req.Status != "" {
		ts.Status = req.Status
	}
	s.slots[req.EventID] = ts
	return ts, nil
}

// ServeHTTP upgrades to a websocket and answers frames until the peer
// goes away.
func (s *DevServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		appLog.Warn("devserver: accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				appLog.Debug("devserver: read ended", "err", err)
			}
			return
		}
		reply := s.handle(data)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			appLog.Debug("devserver: write failed", "err", err)
			return
		}
	}
}

func (s *DevServer) handle(data []byte) Frame {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		return errorFrame("", "malformed frame")
	}

	switch in.Type {
	case TypeFetchTimeslots:
		var req FetchRequest
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &req); err != nil {
				return errorFrame(in.ID, "malformed fetch request")
			}
		}
		slots := s.Timeslots(req.UserID, req.ProjectID)
		body, _ := json.Marshal(map[string]any{
			"success": true,
			"data":    map[string]any{"timeslots": slots},
		})
		appLog.Debug("devserver: fetch", "user_id", req.UserID, "project_id", req.ProjectID, "count", len(slots))
		return Frame{Type: TypeTimeslots, ID: in.ID, Payload: body}

	case TypeUpdateTimeslot:
		var req RelocateRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errorFrame(in.ID, "malformed update request")
		}
		ts, err := s.relocate(req)
		if err != nil {
			return errorFrame(in.ID, err.Error())
		}
		body, _ := json.Marshal(ts)
		appLog.Info("devserver: timeslot moved", "id", ts.ID,
			"start", ts.StartTime.Format(time.RFC3339), "end", ts.EndTime.Format(time.RFC3339))
		return Frame{Type: TypeTimeslotUpdated, ID: in.ID, Payload: body}
	}

	return errorFrame(in.ID, fmt.Sprintf("unknown frame type %q", in.Type))
}

func errorFrame(id, msg string) Frame {
	body, _ := json.Marshal(ErrorPayload{Message: msg})
	return Frame{Type: TypeError, ID: id, Payload: body}
}
