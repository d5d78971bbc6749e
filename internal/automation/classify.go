package automation

import "strings"

// DaysPolicy decides how a rule's trigger_config.dias compares with an event's day count.
type DaysPolicy string

const (
	// DaysAtLeast fires once the elapsed days reach the threshold.
	DaysAtLeast DaysPolicy = "gte"
	// DaysExactly fires only on the threshold day.
	DaysExactly DaysPolicy = "eq"
)

// ParseDaysPolicy falls back to DaysAtLeast for unknown values.
func ParseDaysPolicy(s string) DaysPolicy {
	if DaysPolicy(strings.ToLower(strings.TrimSpace(s))) == DaysExactly {
		return DaysExactly
	}
	return DaysAtLeast
}

// Classifier maps an event to the rules that listen for it.
type Classifier struct {
	Policy DaysPolicy
}

// Match reports whether r should be considered for evt.
func (c Classifier) Match(r *Rule, evt Event) bool {
	if r == nil || !r.Active || r.Trigger != evt.Type {
		return false
	}
	tc := r.TriggerConfig
	if evt.Type.IsDayCount() && tc.Days != nil {
		if c.Policy == DaysExactly {
			if evt.Days != *tc.Days {
				return false
			}
		} else if evt.Days < *tc.Days {
			return false
		}
	}
	if evt.Type == TriggerStatusChanged {
		if tc.FromStatus != "" && !strings.EqualFold(tc.FromStatus, evt.FromStatus) {
			return false
		}
		if tc.ToStatus != "" && !strings.EqualFold(tc.ToStatus, evt.ToStatus) {
			return false
		}
	}
	return true
}

// Classify filters rules down to those matching evt, preserving order.
func (c Classifier) Classify(rules []*Rule, evt Event) []*Rule {
	var out []*Rule
	for _, r := range rules {
		if c.Match(r, evt) {
			out = append(out, r)
		}
	}
	return out
}
