package model

import "time"

// Status is the availability state of a timeslot.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusBusy        Status = "busy"
	StatusPending     Status = "pending"
	StatusUnspecified Status = "unspecified"
)

// Default display colors per status. An explicit Event.Color always wins.
const (
	ColorAvailable = "#3b82f6"
	ColorBusy      = "#ef4444"
	ColorPending   = "#f59e0b"
	ColorDefault   = "#6b7280"
)

// Owner carries avatar metadata only; it has no behavioral effect.
type Owner struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	PhotoURL  string `json:"photoUrl,omitempty"`
}

// DisplayName returns "First Last", trimmed when either part is missing.
func (o *Owner) DisplayName() string {
	if o == nil {
		return ""
	}
	switch {
	case o.FirstName == "":
		return o.LastName
	case o.LastName == "":
		return o.FirstName
	default:
		return o.FirstName + " " + o.LastName
	}
}

// Initials is used when no photo is available.
func (o *Owner) Initials() string {
	if o == nil {
		return ""
	}
	out := ""
	if o.FirstName != "" {
		out += string([]rune(o.FirstName)[0])
	}
	if o.LastName != "" {
		out += string([]rune(o.LastName)[0])
	}
	return out
}

// Event is a scheduled interval. Values are treated as immutable: every
// transform returns a new Event.
type Event struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"startDate"`
	End    time.Time `json:"endDate"`
	Color  string    `json:"color,omitempty"`
	Status Status    `json:"status"`
	Owner  *Owner    `json:"owner,omitempty"`
	Notes  string    `json:"notes,omitempty"`
}

// DisplayColor returns the explicit color or the status default.
func (e Event) DisplayColor() string {
	if e.Color != "" {
		return e.Color
	}
	return DefaultColor(e.Status)
}

// DefaultColor is the color used for a status when none is given.
func DefaultColor(s Status) string {
	switch s {
	case StatusBusy:
		return ColorBusy
	case StatusAvailable:
		return ColorAvailable
	case StatusPending:
		return ColorPending
	default:
		return ColorDefault
	}
}

// IsBusy reports whether the event blocks its dates.
func (e Event) IsBusy() bool {
	return e.Status == StatusBusy
}
