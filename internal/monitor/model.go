package monitor

import "time"

// State is a service's ternary health classification, plus UNK for anything
// that can't be classified. Ordinals are significant: they express
// "worse-than" by numeric comparison, but equality is always compared by
// name (see DESIGN.md — identical state names never alert even if the
// ordinal table were reshuffled).
type State string

const (
	StateOK   State = "OK"
	StateWarn State = "WARN"
	StateFail State = "FAIL"
	StateUnk  State = "UNK"
)

// stateOrdinal holds the severity ordering named in spec.md §3 and §6.
var stateOrdinal = map[State]int{
	StateOK:   0,
	StateWarn: 1,
	StateFail: 2,
	StateUnk:  3,
}

// Ordinal returns the state's severity ordinal, or -1 for an unrecognized
// value (callers should coerce via ParseState before relying on this).
func (s State) Ordinal() int {
	if o, ok := stateOrdinal[s]; ok {
		return o
	}
	return -1
}

// Valid reports whether s is one of the four recognized state names.
func (s State) Valid() bool {
	_, ok := stateOrdinal[s]
	return ok
}

// WorseThan reports whether s is strictly more severe than other, by
// ordinal. Equality of state values is never decided by this method — use
// plain string comparison for that, per spec.md §9's redesign note.
func (s State) WorseThan(other State) bool {
	return s.Ordinal() > other.Ordinal()
}

// ParseState coerces an arbitrary reported state string into a valid State.
// Unrecognized values fall back to StateUnk, matching spec.md §4.7's
// ingest coercion rule.
func ParseState(raw string) (state State, coerced bool) {
	s := State(raw)
	if s.Valid() {
		return s, false
	}
	return StateUnk, true
}

// Server identifies a monitored host, created lazily on first authenticated
// ingest. Name is unique; Key is compared on every subsequent ingest.
type Server struct {
	ID    int64
	Name  string
	Key   string
	Title string
	IP    string
}

// Service is a named probe target owned by a Server.
type Service struct {
	ID       int64
	ServerID int64
	Name     string
	Title    string
	// Period is the expected inter-report interval in seconds. Nil until
	// the service has received its first periodic report.
	Period *int
	// TimedOut is derived: true when the latest state is older than
	// Period. Maintained by DetectTimeout / Store.SetServiceTimedOut.
	TimedOut bool
	// LatestStateID is the stored pointer to the service's current state
	// row (spec.md §9's preferred redesign over a correlated-subquery
	// "latest" relation). Zero when the service has no states yet.
	LatestStateID int64
}

// ServiceState is one append-only observation of a service's health.
type ServiceState struct {
	ID        int64
	ServiceID int64
	RTime     time.Time
	State     State
	Info      string
	// Checked becomes true once the TransitionDetector has visited this
	// row; it never reverts to false.
	Checked bool
}

// Alert is a persisted notification descriptor awaiting delivery.
type Alert struct {
	ID int64
	// ServerID, ServiceID, ServiceStateID are all optional: manual/API
	// alerts may carry only ServerID, liveness alerts carry ServerID and
	// ServiceID but no ServiceStateID.
	ServerID       *int64
	ServiceID      *int64
	ServiceStateID *int64
	CTime          time.Time
	Channel        string
	Event          string
	Message        string
	// Reported becomes true once NotifierSet has dispatched this alert.
	// It never reverts to false.
	Reported bool
}

// Severity derives the alert's severity, as a State, from its (channel, event)
// pair via the fixed table in spec.md §3, defaulting to FAIL for anything
// unrecognized.
func (a *Alert) Severity() State {
	switch a.Channel + "/" + a.Event {
	case "plugin/online":
		return StateOK
	case "plugin/offline":
		return StateFail
	case "service:state/OK":
		return StateOK
	case "service:state/WARN":
		return StateWarn
	case "service:state/FAIL":
		return StateFail
	case "service:state/UNK":
		return StateUnk
	case "api/alert":
		return StateFail
	default:
		return StateFail
	}
}
