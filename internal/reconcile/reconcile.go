// Package reconcile turns inbound timeslot payloads of several shapes into
// the canonical event list.
//
// Nothing here fails: malformed payloads and records degrade to fewer
// events plus a Diagnostic.
package reconcile

import (
	"encoding/json"
	"time"

	appLog "slotcal/internal/log"
	"slotcal/internal/model"
)

// Diagnostic records a dropped record or an unusable payload.
type Diagnostic struct {
	// Index is the record position in the payload, or -1 for payload-level notes.
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Snapshot is the result of reconciling one inbound payload. It replaces
// the previous event list entirely.
type Snapshot struct {
	Events      []model.Event
	Diagnostics []Diagnostic
	// Rule is the name of the payload shape that matched.
	Rule string
}

// Reconcile decodes a JSON payload and reconciles it in loc.
func Reconcile(payload []byte, loc *time.Location) Snapshot {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		snap := Snapshot{
			Events: []model.Event{},
			Rule:   RuleNone,
			Diagnostics: []Diagnostic{{
				Index:  -1,
				Reason: "invalid JSON: " + err.Error(),
			}},
		}
		logDiagnostics(snap)
		return snap
	}
	return ReconcileValue(v, loc)
}

// ReconcileValue reconciles an already-decoded payload.
func ReconcileValue(v any, loc *time.Location) Snapshot {
	if loc == nil {
		loc = time.Local
	}

	records, ruleName := extract(v)
	snap := Snapshot{
		Events: make([]model.Event, 0, len(records)),
		Rule:   ruleName,
	}
	if ruleName == RuleNone {
		snap.Diagnostics = append(snap.Diagnostics, Diagnostic{
			Index:  -1,
			Reason: "unrecognized payload shape",
		})
		logDiagnostics(snap)
		return snap
	}

	// Duplicate ids: last write wins, first position kept.
	pos := make(map[string]int, len(records))
	for i, raw := range records {
		ev, err := toEvent(raw, loc)
		if err != nil {
			d := Diagnostic{Index: i, Reason: err.Error()}
			if obj, ok := raw.(map[string]any); ok {
				d.ID = lookupString(obj, idKeys...)
			}
			snap.Diagnostics = append(snap.Diagnostics, d)
			continue
		}
		if at, seen := pos[ev.ID]; seen {
			snap.Events[at] = ev
			continue
		}
		pos[ev.ID] = len(snap.Events)
		snap.Events = append(snap.Events, ev)
	}

	logDiagnostics(snap)
	return snap
}

func logDiagnostics(snap Snapshot) {
	for _, d := range snap.Diagnostics {
		appLog.Warn("reconcile: dropped input",
			"rule", snap.Rule,
			"index", d.Index,
			"id", d.ID,
			"reason", d.Reason,
		)
	}
	appLog.Debug("reconcile: snapshot", "rule", snap.Rule, "events", len(snap.Events))
}
