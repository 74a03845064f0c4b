package reconcile

// rule is one accepted inbound payload shape. extract returns the raw
// record list and true when the payload has that shape.
type rule struct {
	name    string
	extract func(v any) ([]any, bool)
}

// Rule names, reported in Snapshot.Rule.
const (
	RuleArray         = "array"
	RuleTimeslots     = "timeslots"
	RuleDataTimeslots = "data.timeslots"
	RuleData          = "data"
	RuleEnvelope      = "envelope"
	RuleNone          = "none"
)

// envelopeKeys are the fields a {success, ...} envelope may nest its body in.
var envelopeKeys = []string{"result", "payload", "response"}

// bodyRules are the shapes an envelope may wrap.
var bodyRules = []rule{
	{name: RuleArray, extract: extractArray},
	{name: RuleTimeslots, extract: extractTimeslots},
	{name: RuleDataTimeslots, extract: extractDataTimeslots},
	{name: RuleData, extract: extractData},
}

// rules are tried in order; the first match wins.
var rules = append(bodyRules[:len(bodyRules):len(bodyRules)],
	rule{name: RuleEnvelope, extract: extractEnvelope},
)

func extractArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

func extractTimeslots(v any) ([]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	arr, ok := obj["timeslots"].([]any)
	return arr, ok
}

func extractDataTimeslots(v any) ([]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return extractTimeslots(obj["data"])
}

func extractData(v any) ([]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	arr, ok := obj["data"].([]any)
	return arr, ok
}

// extractEnvelope unwraps {success: true, <key>: <shape>} where <shape> is
// any of the non-envelope shapes. success:false matches with zero records.
func extractEnvelope(v any) ([]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	success, ok := obj["success"]
	if !ok {
		return nil, false
	}
	if b, isBool := success.(bool); isBool && !b {
		return []any{}, true
	}
	for _, key := range envelopeKeys {
		inner, present := obj[key]
		if !present {
			continue
		}
		for _, r := range bodyRules {
			if recs, ok := r.extract(inner); ok {
				return recs, true
			}
		}
	}
	return nil, false
}

// extract applies the rules in order and returns the matched records and
// the name of the rule that matched.
func extract(v any) ([]any, string) {
	for _, r := range rules {
		if recs, ok := r.extract(v); ok {
			return recs, r.name
		}
	}
	return nil, RuleNone
}
