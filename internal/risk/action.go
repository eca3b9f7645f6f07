package risk

import "strings"

// Action is the recommended follow-up attached to an assessment.
type Action string

const (
	ActionMonitor   Action = "monitor"
	ActionANCVisit  Action = "anc_visit"
	ActionCall1195  Action = "call_1195"
	ActionEmergency Action = "emergency"
)

// ParseAction normalizes a model-provided action string into the closed
// enum. Anything outside it fails, which sends the payload down the
// plain-completion fallback.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionMonitor:
		return ActionMonitor, true
	case ActionANCVisit:
		return ActionANCVisit, true
	case ActionCall1195:
		return ActionCall1195, true
	case ActionEmergency:
		return ActionEmergency, true
	}
	return "", false
}
