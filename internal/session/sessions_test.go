package session

import (
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %v", id)
		}
		seen[id] = true
	}
}

func TestIDStringIsBase64(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if got := len(id.String()); got != 32 {
		t.Errorf("base64 length = %d, want 32 for a 24-byte id", got)
	}
}

// TestCleanupRateLimitedEviction replicates the canonical eviction
// scenario: 100 sessions with keepAlive=3s, cleanupInterval=4s; a
// cleanup call 2s in leaves all 100 untouched (the rate-limit gate
// hasn't opened yet); a second batch of 100 created at that point, then
// a cleanup call 3s after that (5s total) evicts exactly the first
// batch and keeps the second.
func TestCleanupRateLimitedEviction(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))

	s := New[int](3*time.Second, 4*time.Second, clock)

	for i := 0; i < 100; i++ {
		if _, err := s.Create(i); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	clock.AdvanceTime(2 * time.Second)
	s.Cleanup()
	if got := s.Len(); got != 100 {
		t.Fatalf("after first cleanup: Len() = %d, want 100", got)
	}

	secondBatch := make([]ID, 0, 100)
	for i := 0; i < 100; i++ {
		id, err := s.Create(1000 + i)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		secondBatch = append(secondBatch, id)
	}

	clock.AdvanceTime(3 * time.Second)
	s.Cleanup()

	if got := s.Len(); got != 100 {
		t.Fatalf("after second cleanup: Len() = %d, want 100", got)
	}
	for _, id := range secondBatch {
		if _, ok := s.Get(id); !ok {
			t.Errorf("second-batch session %v was evicted, want kept", id)
		}
	}
}

func TestGetTouchesLastAccess(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))

	s := New[string](1*time.Second, 1*time.Second, clock)
	id, err := s.Create("hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.AdvanceTime(900 * time.Millisecond)
	if _, ok := s.Get(id); !ok {
		t.Fatal("expected session present before expiry")
	}

	// Get() above touched lastAccess to 900ms; advancing another 900ms
	// keeps it alive (total age since touch is 900ms < 1s keepAlive).
	clock.AdvanceTime(900 * time.Millisecond)
	s.Cleanup()
	if _, ok := s.Get(id); !ok {
		t.Fatal("expected Get to have refreshed last-access, keeping session alive")
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))

	s := New[int](time.Minute, time.Minute, clock)
	id, _ := s.Create(7)
	s.Delete(id)
	if _, ok := s.Get(id); ok {
		t.Fatal("expected deleted session to be gone")
	}
}
