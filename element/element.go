// Package element defines the contract between the NDI elements and the
// pipeline host that drives them: lifecycle states, flow sentinel errors,
// and the factory registry hosts use to instantiate elements by name.
package element

import "errors"

// State is the lifecycle position of an element, driven by the host.
type State int32

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Flow sentinels returned by element data operations. Hosts compare with
// errors.Is.
var (
	// ErrFlushing means the element is flushing and the operation was
	// abandoned without producing data.
	ErrFlushing = errors.New("flushing")
	// ErrEOS means the flow has ended.
	ErrEOS = errors.New("end of stream")
	// ErrNotLinked means no downstream consumer is attached.
	ErrNotLinked = errors.New("not linked")
	// ErrNotNegotiated means the data's format cannot be expressed or
	// handled.
	ErrNotNegotiated = errors.New("format not negotiated")
)

// Element is the minimal surface every registered element exposes. Hosts
// type-assert to the concrete element APIs for data flow.
type Element interface {
	Name() string
}
