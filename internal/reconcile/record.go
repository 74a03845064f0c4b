package reconcile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"slotcal/internal/model"
)

var (
	errNotObject       = errors.New("record is not an object")
	errMissingID       = errors.New("missing id")
	errMissingBoundary = errors.New("missing start or end")
)

// Accepted aliases for raw record fields, in lookup order.
var (
	idKeys    = []string{"id", "_id"}
	titleKeys = []string{"title", "name"}
	startKeys = []string{"startTime", "start", "startDate"}
	endKeys   = []string{"endTime", "end", "endDate"}
	photoKeys = []string{"photoUrl", "profilePicture"}
)

// timeLayouts are tried in order when parsing a boundary. Layouts without a
// zone are interpreted in the display location.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	model.DateKeyLayout,
}

// toEvent maps one raw record onto an Event in loc.
func toEvent(raw any, loc *time.Location) (model.Event, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.Event{}, errNotObject
	}

	id := lookupString(obj, idKeys...)
	if id == "" {
		return model.Event{}, errMissingID
	}

	startRaw := lookupString(obj, startKeys...)
	endRaw := lookupString(obj, endKeys...)
	if startRaw == "" || endRaw == "" {
		return model.Event{}, errMissingBoundary
	}
	start, err := parseTime(startRaw, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseTime(endRaw, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}

	status := mapStatus(lookupString(obj, "status"))
	ev := model.Event{
		ID:     id,
		Title:  lookupString(obj, titleKeys...),
		Status: status,
		Color:  lookupString(obj, "color"),
		Notes:  lookupString(obj, "notes"),
		Owner:  toOwner(obj["user"]),
	}
	if ev.Color == "" {
		ev.Color = model.DefaultColor(status)
	}
	return model.WithDates(ev, &start, &end), nil
}

// mapStatus keeps known statuses and maps everything else to available.
func mapStatus(s string) model.Status {
	switch model.Status(strings.ToLower(strings.TrimSpace(s))) {
	case model.StatusBusy:
		return model.StatusBusy
	case model.StatusPending:
		return model.StatusPending
	default:
		return model.StatusAvailable
	}
}

func toOwner(raw any) *model.Owner {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	o := &model.Owner{
		ID:        lookupString(obj, idKeys...),
		FirstName: lookupString(obj, "firstName"),
		LastName:  lookupString(obj, "lastName"),
		PhotoURL:  lookupString(obj, photoKeys...),
	}
	if *o == (model.Owner{}) {
		return nil
	}
	return o
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// lookupString returns the first non-empty value among keys, rendering
// numbers as integers where possible (JSON ids are sometimes numeric).
func lookupString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}
