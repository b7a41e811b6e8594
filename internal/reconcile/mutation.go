package reconcile

import "fmt"

// Kind names the chat mutation a request performs.
type Kind string

const (
	KindCreate     Kind = "create"
	KindSend       Kind = "send"
	KindRegenerate Kind = "regenerate"
	KindRename     Kind = "rename"
	KindDelete     Kind = "delete"
	KindClear      Kind = "clear"
	KindSettings   Kind = "settings"
)

// State is the lifecycle position of a mutation.
type State int

const (
	StateIdle State = iota
	StatePending
	StateApplied
	StateRejected
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateApplied:
		return "applied"
	case StateRejected:
		return "rejected"
	case StateSuperseded:
		return "superseded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mutation records one request against the backend. A pending mutation can
// be marked superseded before its response arrives; the response is then
// discarded.
type Mutation struct {
	ID     uint64
	Kind   Kind
	ChatID string
	State  State
	Err    error
}

