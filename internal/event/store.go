package event

import (
	"errors"
	"sync"
)

// ErrSealed is returned by Append once the store has been finished.
var ErrSealed = errors.New("event store is sealed")

// Store is an append-only, ordered collection of events shared by every host
// thread. The zero value is ready to use.
type Store struct {
	mu     sync.Mutex
	events []Event
	sealed bool
}

// NewStore creates an empty store with room for capacity events.
func NewStore(capacity int) *Store {
	return &Store{events: make([]Event, 0, capacity)}
}

// Append adds ev at the end of the timeline.
func (s *Store) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrSealed
	}
	s.events = append(s.events, ev)
	return nil
}

// Len returns the number of events appended so far.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Snapshot returns a copy of the current timeline without sealing the store.
func (s *Store) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Finish appends last and seals the store in one step, then hands over the
// timeline. No event can land after last. Only the first call returns
// events; later calls return nil.
func (s *Store) Finish(last Event) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return nil
	}
	s.sealed = true
	out := append(s.events, last)
	s.events = nil
	return out
}
