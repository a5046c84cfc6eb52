package sink

import (
	"context"
)

// Event names a one-time sink notification.
type Event string

const (
	// EventDrain fires when a sink that reported backpressure has room again.
	// It is level-triggered: a listener registered while no drain is owed fires at once.
	EventDrain Event = "drain"
	// EventFinish fires once all bytes were flushed and the writer closed. Sticky.
	EventFinish Event = "finish"
	// EventError fires once with the sink's failure. Sticky.
	EventError Event = "error"
)

// Listener is a one-time subscription to a sink event. C receives exactly one
// value when the event fires: nil for drain and finish, the failure for error.
type Listener struct {
	C <-chan error

	sink  *Sink
	event Event
	id    uint64
}

// Once registers a one-time listener for ev. A listener that fired is detached
// automatically; one that did not must be released with Release.
func (s *Sink) Once(ev Event) *Listener {
	ch := make(chan error, 1)
	l := &Listener{C: ch, sink: s, event: ev}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case ev == EventError && s.err != nil:
		ch <- s.err
		return l
	case ev == EventFinish && s.finished:
		ch <- nil
		return l
	case ev == EventDrain && !s.needDrain:
		ch <- nil
		return l
	}

	s.nextID++
	l.id = s.nextID
	if s.listeners[ev] == nil {
		s.listeners[ev] = make(map[uint64]chan error)
	}
	s.listeners[ev][l.id] = ch
	return l
}

// Release detaches the listener if it has not fired. Safe to call more than once.
func (l *Listener) Release() {
	if l.id == 0 {
		return
	}
	s := l.sink
	s.mu.Lock()
	delete(s.listeners[l.event], l.id)
	s.mu.Unlock()
}

// ListenerCount returns the number of attached listeners for the given events,
// or for all events when none are given.
func (s *Sink) ListenerCount(events ...Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(events) == 0 {
		events = []Event{EventDrain, EventFinish, EventError}
	}
	n := 0
	for _, ev := range events {
		n += len(s.listeners[ev])
	}
	return n
}

// Await blocks until ev fires, the sink fails, or ctx is done, whichever comes
// first. Both listeners are released before Await returns. When ev and the
// failure are both observable the failure wins.
func (s *Sink) Await(ctx context.Context, ev Event) error {
	done := s.Once(ev)
	defer done.Release()
	failed := s.Once(EventError)
	defer failed.Release()

	select {
	case <-done.C:
		select {
		case err := <-failed.C:
			return err
		default:
			return nil
		}
	case err := <-failed.C:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) emitLocked(ev Event, err error) {
	for id, ch := range s.listeners[ev] {
		ch <- err
		delete(s.listeners[ev], id)
	}
}
