package monitor

import (
	"fmt"
	"time"
)

// AlertDescriptor is the output of the pure detector functions: everything
// the caller needs to persist an Alert, without a database dependency.
type AlertDescriptor struct {
	ServiceID      *int64
	ServiceStateID *int64
	Channel        string
	Event          string
	Message        string
}

// DetectTransition implements spec.md §4.4's TransitionDetector. prev is
// the service's immediately preceding state, or nil if curr is the
// service's first-ever row. The absent-history baseline is "OK" (so a
// first-ever OK report never alerts), while the alert message names the
// missing previous state with the "(?)" placeholder (spec.md §9).
func DetectTransition(prev *ServiceState, curr ServiceState) []AlertDescriptor {
	baseline := StateOK
	if prev != nil {
		baseline = prev.State
	}

	// Equality is by name, not ordinal — spec.md §9's redesign note.
	if curr.State == baseline {
		return nil
	}

	// The rendered message shows the literal "(?)" placeholder when there
	// is no history, even though the comparison above used "OK" as its
	// baseline. Detection and rendering are deliberately decoupled here —
	// spec.md §9.
	rendered := "(?)"
	if prev != nil {
		rendered = string(prev.State)
	}

	stateID := curr.ID
	return []AlertDescriptor{{
		ServiceID:      &curr.ServiceID,
		ServiceStateID: &stateID,
		Channel:        "service:state",
		Event:          string(curr.State),
		Message:        fmt.Sprintf("State changed: %q -> %q", rendered, curr.State),
	}}
}

// DetectTimeout implements spec.md §4.4's liveness detector. It returns
// nil when the service has no period or no latest state, or when the
// timed-out flag would not change. When it does fire, the caller persists
// both the returned alert and the new svc.TimedOut value
// (Store.SetServiceTimedOut); the Supervisor appends the alert first and
// then updates the flag, as two separate store calls.
func DetectTimeout(svc Service, latest *ServiceState, now time.Time) *AlertDescriptor {
	if svc.Period == nil || latest == nil {
		return nil
	}

	wasTimedOut := svc.TimedOut
	isTimedOut := now.Sub(latest.RTime) > time.Duration(*svc.Period)*time.Second

	if wasTimedOut == isTimedOut {
		return nil
	}

	event, message := "online", "Monitoring plugin back online"
	if isTimedOut {
		event, message = "offline", "Monitoring plugin offline"
	}

	svcID := svc.ID
	return &AlertDescriptor{
		ServiceID: &svcID,
		Channel:   "plugin",
		Event:     event,
		Message:   message,
	}
}
