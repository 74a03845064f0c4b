package remote

import (
	"encoding/json"
	"time"
)

// Frame types exchanged with the timeslot service.
const (
	TypeFetchTimeslots  = "fetch_timeslots"
	TypeUpdateTimeslot  = "update_timeslot"
	TypeTimeslots       = "timeslots"
	TypeTimeslotUpdated = "timeslot_updated"
	TypeError           = "error"
)

// Frame is one websocket message. ID correlates replies with requests.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FetchRequest asks for the timeslots of one user in one project. The
// reply arrives asynchronously as a "timeslots" frame.
type FetchRequest struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

// RelocateRequest moves a timeslot to a new range.
type RelocateRequest struct {
	EventID   string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Start     time.Time `json:"startTime"`
	End       time.Time `json:"endTime"`
	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// ErrorPayload is carried by "error" frames.
type ErrorPayload struct {
	Message string `json:"message"`
}
