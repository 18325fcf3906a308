// Package event defines the profiling timeline: the recorded Event and the
// process-wide Store that collects them.
package event

import (
	"fmt"
)

// ProcessPath is the path recorded on lifecycle sentinels.
const ProcessPath = "__PROCESS__"

// Type identifies what produced an event.
type Type uint8

const (
	// Init marks library load. It is always the first event.
	Init Type = iota + 1
	// Fini marks library unload. It is always the last event.
	Fini
	// Open is a shadowed open(2) call.
	Open
	// Close is a shadowed close(2) call.
	Close
)

var typeNames = map[Type]string{
	Init:  "init",
	Fini:  "fini",
	Open:  "open",
	Close: "close",
}

// String returns the report name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// IsSentinel reports whether t marks a lifecycle boundary rather than a call.
func (t Type) IsSentinel() bool {
	return t == Init || t == Fini
}

// ParseType is the inverse of Type.String.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", name)
}

// Event is one observation in the timeline.
type Event struct {
	// Path is the file path argument for Open, empty for Close and
	// ProcessPath for sentinels.
	Path string
	Type Type
	// Duration is the elapsed nanoseconds of the wrapped call. For sentinels
	// it holds the Unix timestamp in nanoseconds at the boundary.
	Duration uint64
	// FD is the returned descriptor for Open, the closed descriptor for
	// Close and zero for sentinels.
	FD int32
}

// NewSentinel builds an Init or Fini event stamped with unixNanos.
func NewSentinel(t Type, unixNanos uint64) Event {
	return Event{
		Path:     ProcessPath,
		Type:     t,
		Duration: unixNanos,
	}
}
