package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"whiteboard-backend/internal/model"
)

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *stubResolver) {
	t.Helper()
	resolver := newStubResolver()
	r := NewRegistry(cfg, resolver, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Shutdown(ctx)
	})
	return r, resolver
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})

	s1, err := r.GetOrCreate("room-a", 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	s2, err := r.GetOrCreate("room-a", 0)
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if s1 != s2 {
		t.Error("expected the same session for the same room")
	}

	other, err := r.GetOrCreate("room-b", 0)
	if err != nil {
		t.Fatalf("GetOrCreate for room-b failed: %v", err)
	}
	if other == s1 {
		t.Error("different rooms must get different sessions")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestConcurrentGetOrCreateReturnsOneInstance(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})

	const callers = 32
	sessions := make([]*RoomSession, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate("room-a", 0)
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if sessions[i] != sessions[0] {
			t.Fatalf("caller %d got a different session instance", i)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestEvictionAllowsFreshSession(t *testing.T) {
	r, resolver := newTestRegistry(t, Config{DrainGrace: 30 * time.Millisecond})
	resolver.set(1, model.RoleEdit)

	s1, err := r.GetOrCreate("room-a", 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	p, err := s1.Join(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	drainAsync(p)
	s1.Leave(p)

	// Wait for the drain timer to evict the empty session.
	deadline := time.Now().Add(2 * time.Second)
	for r.Get("room-a") != nil {
		if time.Now().After(deadline) {
			t.Fatal("session was never evicted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A new get-or-create starts a fresh session with a fresh log.
	s2, err := r.GetOrCreate("room-a", 0)
	if err != nil {
		t.Fatalf("GetOrCreate after eviction failed: %v", err)
	}
	if s2 == s1 {
		t.Fatal("expected a fresh session after eviction")
	}
	if _, err := s2.Join(context.Background(), 1, "alice"); err != nil {
		t.Fatalf("Join on fresh session failed: %v", err)
	}
}

func TestJoinRetryAfterConcurrentClose(t *testing.T) {
	r, resolver := newTestRegistry(t, Config{})
	resolver.set(1, model.RoleEdit)

	stale, err := r.GetOrCreate("room-a", 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stale.Close(ctx)

	// The gateway pattern: a stale handle fails with ErrSessionClosed,
	// then a registry retry succeeds.
	if _, err := stale.Join(context.Background(), 1, "alice"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Join on closed session returned %v, want ErrSessionClosed", err)
	}
	fresh, err := r.GetOrCreate("room-a", 0)
	if err != nil {
		t.Fatalf("retry GetOrCreate failed: %v", err)
	}
	if fresh == stale {
		t.Fatal("registry returned the closed session")
	}
	if _, err := fresh.Join(context.Background(), 1, "alice"); err != nil {
		t.Fatalf("Join on fresh session failed: %v", err)
	}
}

func TestNotifyRolesChangedWithoutSession(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	// Must be a no-op, not a panic: roles are resolved fresh on next join.
	r.NotifyRolesChanged("no-such-room")
}

func TestShutdownClosesEverything(t *testing.T) {
	resolver := newStubResolver()
	resolver.set(1, model.RoleEdit)
	r := NewRegistry(Config{}, resolver, nil)

	s, err := r.GetOrCreate("room-a", 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	p, err := s.Join(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	drainAsync(p)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Shutdown(ctx)

	if r.Len() != 0 {
		t.Errorf("Len() after shutdown = %d, want 0", r.Len())
	}
	if _, err := s.Join(context.Background(), 1, "alice"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Join after shutdown returned %v, want ErrSessionClosed", err)
	}
	if _, err := r.GetOrCreate("room-b", 0); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("GetOrCreate after shutdown returned %v, want ErrSessionClosed", err)
	}
}
