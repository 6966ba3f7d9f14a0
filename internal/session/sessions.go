// Package session implements session ids and a keep-alive, lazily-swept
// session store: Sessions.Cleanup must be called by the user for any
// eviction to take place, and is itself rate-limited to at most once per
// configured interval.
package session

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

// entry is a stored value plus the last time it was touched. The
// timestamp lives on the stored record, not on the id: the id is
// comparable/hashable purely on its 24 raw bytes.
type entry[T any] struct {
	value      T
	lastAccess time.Time
}

// Sessions is a keep-alive session store keyed by ID. It performs no
// background work of its own; Cleanup must be invoked periodically by
// the caller, and itself no-ops unless cleanupInterval has elapsed since
// the last sweep that actually ran.
type Sessions[T any] struct {
	keepAlive       time.Duration
	cleanupInterval time.Duration
	clock           timeutil.Clock
	mu              sync.Mutex
	entries         map[ID]*entry[T]
	nextCleanup     time.Time
}

// New returns a Sessions store with the given keep-alive duration and
// cleanup rate limit, using clock for "now".
func New[T any](keepAlive, cleanupInterval time.Duration, clock timeutil.Clock) *Sessions[T] {
	return &Sessions[T]{
		keepAlive:       keepAlive,
		cleanupInterval: cleanupInterval,
		clock:           clock,
		entries:         make(map[ID]*entry[T]),
		nextCleanup:     clock.Now().Add(cleanupInterval),
	}
}

// Create allocates a fresh id, stores value under it with a last-access
// time of now, and returns the id.
func (s *Sessions[T]) Create(value T) (ID, error) {
	id, err := NewID()
	if err != nil {
		return ID{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry[T]{value: value, lastAccess: s.clock.Now()}
	return id, nil
}

// Get returns the value stored under id and touches its last-access
// time. The second result is false if id is unknown (e.g. already
// evicted).
func (s *Sessions[T]) Get(id ID) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	e.lastAccess = s.clock.Now()
	return e.value, true
}

// Set replaces the value stored under id without altering its
// last-access time. It reports whether id was present.
func (s *Sessions[T]) Set(id ID, value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.value = value
	return true
}

// Delete removes id unconditionally.
func (s *Sessions[T]) Delete(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len reports the number of sessions currently stored, including ones
// past their keep-alive that simply haven't been swept yet.
func (s *Sessions[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup evicts every session whose last access is older than
// keepAlive, but only if cleanupInterval has elapsed since the last time
// a sweep actually ran; otherwise it returns immediately having done
// nothing. This mirrors the original cleanupTime gate: a cheap call that
// callers can issue on every request without it costing an O(n) scan
// each time.
func (s *Sessions[T]) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now.Before(s.nextCleanup) {
		return
	}

	oldest := now.Add(-s.keepAlive)
	for id, e := range s.entries {
		if e.lastAccess.Before(oldest) {
			delete(s.entries, id)
		}
	}
	s.nextCleanup = now.Add(s.cleanupInterval)
}
