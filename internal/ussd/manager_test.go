package ussd

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestManagerEnsureAndEnd(t *testing.T) {
	m := NewManager(time.Minute, nil)

	s := m.Ensure("AT_1", "+254712345678")
	if s.ID != "AT_1" || s.Phone != "+254712345678" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	again := m.Ensure("AT_1", "+254712345678")
	if !again.StartedAt.Equal(s.StartedAt) {
		t.Fatalf("Ensure() restarted the session: %v vs %v", again.StartedAt, s.StartedAt)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() after re-Ensure = %d, want 1", m.ActiveCount())
	}

	if _, ok := m.End("AT_1"); !ok {
		t.Fatalf("End() = false, want true")
	}
	if _, ok := m.End("AT_1"); ok {
		t.Fatalf("second End() = true, want false")
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() after End = %d, want 0", m.ActiveCount())
	}
}

func TestManagerJanitorExpiresIdle(t *testing.T) {
	m := NewManager(30*time.Millisecond, nil)

	var mu sync.Mutex
	var expired []Session
	m.SetExpireHook(func(s Session) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, s)
	})

	m.Ensure("AT_1", "+254712345678")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)

	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0 after expiry", m.ActiveCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0].ID != "AT_1" {
		t.Fatalf("expired sessions = %+v, want exactly AT_1", expired)
	}
}

func TestManagerKeepsBusySessionsAlive(t *testing.T) {
	m := NewManager(50*time.Millisecond, nil)
	m.Ensure("AT_1", "+254712345678")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	// Keep touching the session past several janitor runs.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		m.Ensure("AT_1", "+254712345678")
	}

	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want active session kept alive", m.ActiveCount())
	}
}
