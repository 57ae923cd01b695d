package expand

import "fmt"

// State is a step of the per-event state machine.
type State int

const (
	StateIdle State = iota
	StateClassified
	StateIgnored
	StateScanned
	StateNoMatch
	StateMatched
	StateMutated
	StateCursorSet
	StateNotifiedHost
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateClassified:   "classified",
	StateIgnored:      "ignored",
	StateScanned:      "scanned",
	StateNoMatch:      "no-match",
	StateMatched:      "matched",
	StateMutated:      "mutated",
	StateCursorSet:    "cursor-set",
	StateNotifiedHost: "notified-host",
	StateFailed:       "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	StateIdle:         {StateClassified},
	StateClassified:   {StateIgnored, StateScanned},
	StateIgnored:      {StateIdle},
	StateScanned:      {StateNoMatch, StateMatched},
	StateNoMatch:      {StateIdle},
	StateMatched:      {StateMutated, StateFailed},
	StateMutated:      {StateCursorSet},
	StateCursorSet:    {StateNotifiedHost},
	StateNotifiedHost: {StateIdle},
	StateFailed:       {StateIdle},
}

// CanTransition reports whether the machine may move from one state to
// another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Kind classifies an editing target.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPlain
	KindRich
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindRich:
		return "rich"
	default:
		return "unsupported"
	}
}

// Outcome summarizes how an event ended.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeNoMatch
	OutcomeExpanded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoMatch:
		return "no-match"
	case OutcomeExpanded:
		return "expanded"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Reason explains an ignored or failed event.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnsupportedTarget
	ReasonSynthetic
	ReasonNoCaret
	ReasonCaretNotText
	ReasonWriteFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonUnsupportedTarget:
		return "unsupported target"
	case ReasonSynthetic:
		return "synthetic event"
	case ReasonNoCaret:
		return "no caret"
	case ReasonCaretNotText:
		return "caret not in text node"
	case ReasonWriteFailed:
		return "write failed"
	default:
		return ""
	}
}

// Result reports what the engine did with one event.
type Result struct {
	Kind      Kind
	Outcome   Outcome
	Reason    Reason
	Trigger   string
	Expansion string

	// Err is set when Outcome is OutcomeFailed.
	Err error

	// Path lists every state visited, starting and ending at StateIdle.
	Path []State
}

// Observer is told about every state transition.
type Observer interface {
	OnTransition(from, to State, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from, to State, ev Event)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(from, to State, ev Event) { f(from, to, ev) }
