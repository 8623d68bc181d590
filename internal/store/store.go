// Package store holds reducer-driven state containers. A Store is created
// with New, observed with Subscribe, mutated only through Dispatch and
// released with Close.
package store

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("store: closed")

// Reducer computes the next state. It must be pure and must not retain or
// mutate its input.
type Reducer[S, A any] func(state S, action A) S

// Listener observes every state change in dispatch order.
type Listener[S any] func(state S)

// Store serializes actions through a reducer and fans each new state out to
// listeners. Listeners run on the dispatching goroutine and must not call
// Dispatch on the same store.
type Store[S, A any] struct {
	reduce Reducer[S, A]

	dispatchMu sync.Mutex // serializes reduce + notify

	mu        sync.RWMutex
	state     S
	listeners map[uint64]Listener[S]
	nextID    uint64
	closed    bool
}

// New creates a store holding initial.
func New[S, A any](initial S, reduce Reducer[S, A]) *Store[S, A] {
	return &Store[S, A]{
		reduce:    reduce,
		state:     initial,
		listeners: make(map[uint64]Listener[S]),
	}
}

// State returns the current state.
func (s *Store[S, A]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies action and notifies listeners. It returns the state the
// action was applied to alongside the resulting state, so callers can keep
// an exact rollback snapshot.
func (s *Store[S, A]) Dispatch(action A) (prev, next S, err error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return prev, next, ErrClosed
	}
	prev = s.state
	next = s.reduce(prev, action)
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return prev, next, nil
}

// Subscribe registers l and returns a func that removes it. Unsubscribing
// twice is harmless.
func (s *Store[S, A]) Subscribe(l Listener[S]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close drops all listeners and rejects further dispatches. The last state
// stays readable.
func (s *Store[S, A]) Close() {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = make(map[uint64]Listener[S])
}

// Closed reports whether Close has been called.
func (s *Store[S, A]) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// snapshotListeners returns listeners in subscription order. Caller holds mu.
func (s *Store[S, A]) snapshotListeners() []Listener[S] {
	out := make([]Listener[S], 0, len(s.listeners))
	for id := uint64(0); id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
