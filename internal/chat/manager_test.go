package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nutrichat/nutrichat-api/internal/connectivity"
	"github.com/nutrichat/nutrichat-api/internal/consent"
)

func newTestManager(t *testing.T, store consent.Store, size int) *Manager {
	t.Helper()
	m, err := NewManager(zerolog.Nop(), store, &fakeFetcher{}, newFakeConn(connectivity.StatusConnected), size)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestManagerReturnsSameSessionPerDevice(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, consent.NewMemoryStore(), 4)
	ctx := context.Background()

	a := m.Session(ctx, "device-a")
	if m.Session(ctx, "device-a") != a {
		t.Error("second lookup for the same device returned a new session")
	}
	if m.Session(ctx, "device-b") == a {
		t.Error("different devices share a session")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestManagerEvictionClosesSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, consent.NewMemoryStore(), 2)
	ctx := context.Background()

	a := m.Session(ctx, "device-a")
	b := m.Session(ctx, "device-b")
	bEvents, cancel := b.Subscribe()
	defer cancel()

	// Refresh a so b becomes the eviction candidate.
	m.Session(ctx, "device-a")
	m.Session(ctx, "device-c")

	waitForClose(t, bEvents)
	if _, err := b.SubmitText("pasta"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("evicted session err = %v, want ErrSessionClosed", err)
	}
	if _, err := a.Status(); err != nil {
		t.Errorf("surviving session unusable: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestConsentSurvivesSessionLifecycle(t *testing.T) {
	t.Parallel()

	store := consent.NewMemoryStore()
	ctx := context.Background()

	m1 := newTestManager(t, store, 4)
	s1 := m1.Session(ctx, "device-a")
	if _, err := s1.SubmitText("pasta"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if _, err := s1.GrantConsent(ctx); err != nil {
		t.Fatalf("GrantConsent: %v", err)
	}
	m1.Close()

	// A fresh session against the same store does not ask again.
	m2 := newTestManager(t, store, 4)
	s2 := m2.Session(ctx, "device-a")
	res, err := s2.SubmitText("sushi")
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if res.Status != SubmitAccepted {
		t.Errorf("Status = %q, want %q; consent flag did not survive", res.Status, SubmitAccepted)
	}
}

func TestManagerCloseStopsAllSessions(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, consent.NewMemoryStore(), 4)
	ctx := context.Background()

	a := m.Session(ctx, "device-a")
	b := m.Session(ctx, "device-b")
	aEvents, cancelA := a.Subscribe()
	defer cancelA()
	bEvents, cancelB := b.Subscribe()
	defer cancelB()

	m.Close()
	waitForClose(t, aEvents)
	waitForClose(t, bEvents)

	for _, s := range []*Session{a, b} {
		if _, err := s.Status(); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("session %s err = %v, want ErrSessionClosed", s.DeviceID(), err)
		}
	}
}
