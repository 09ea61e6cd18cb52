package consent

import (
	"context"
	"errors"
	"testing"
)

type failingStore struct {
	readErr  error
	writeErr error
	*MemoryStore
}

func (s *failingStore) Acknowledged(ctx context.Context, deviceID string) (bool, error) {
	if s.readErr != nil {
		return false, s.readErr
	}
	return s.MemoryStore.Acknowledged(ctx, deviceID)
}

func (s *failingStore) SetAcknowledged(ctx context.Context, deviceID string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.MemoryStore.SetAcknowledged(ctx, deviceID)
}

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(context.Background(), NewMemoryStore(), "device-1")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestRequestSendBeforeConsentParksText(t *testing.T) {
	t.Parallel()

	g := newTestGate(t)
	if got := g.RequestSend("pasta"); got != NeedsConsent {
		t.Fatalf("expected NeedsConsent, got %v", got)
	}
	if !g.Waiting() {
		t.Fatalf("gate should be waiting after parking a send")
	}
}

func TestSecondRequestSendWhileWaitingKeepsFirstText(t *testing.T) {
	t.Parallel()

	g := newTestGate(t)
	g.RequestSend("first")
	if got := g.RequestSend("second"); got != NeedsConsent {
		t.Fatalf("expected NeedsConsent on re-entrant request, got %v", got)
	}

	text, ok := g.FlushPending()
	if !ok {
		t.Fatalf("expected a pending text")
	}
	if text != "first" {
		t.Fatalf("first pending text must win, got %q", text)
	}
}

func TestGrantDoesNotDispatch(t *testing.T) {
	t.Parallel()

	g := newTestGate(t)
	g.RequestSend("pasta")
	if err := g.Grant(context.Background()); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !g.Acknowledged() {
		t.Fatalf("gate should be acknowledged after Grant")
	}
	// The text is still parked until FlushPending is called explicitly.
	if !g.Waiting() {
		t.Fatalf("Grant must not clear the pending send")
	}
}

func TestFlushPendingReturnsTextExactlyOnce(t *testing.T) {
	t.Parallel()

	g := newTestGate(t)
	g.RequestSend("pasta")
	g.Grant(context.Background())

	text, ok := g.FlushPending()
	if !ok || text != "pasta" {
		t.Fatalf("expected (pasta, true), got (%q, %v)", text, ok)
	}
	if _, ok := g.FlushPending(); ok {
		t.Fatalf("second flush must find nothing")
	}
	if g.Waiting() {
		t.Fatalf("pending send should be empty after flush")
	}
}

func TestCancelPendingClearsWithoutSending(t *testing.T) {
	t.Parallel()

	g := newTestGate(t)
	g.RequestSend("pasta")
	g.CancelPending()

	if g.Waiting() {
		t.Fatalf("pending send should be empty after cancel")
	}
	if _, ok := g.FlushPending(); ok {
		t.Fatalf("flush after cancel must find nothing")
	}
}

func TestRequestSendAfterGrantProceeds(t *testing.T) {
	t.Parallel()

	g := newTestGate(t)
	g.Grant(context.Background())
	if got := g.RequestSend("pasta"); got != Proceed {
		t.Fatalf("expected Proceed once acknowledged, got %v", got)
	}
	if g.Waiting() {
		t.Fatalf("nothing should be parked when the gate proceeds")
	}
}

func TestAcknowledgementPersistsAcrossGates(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	g1, err := NewGate(ctx, store, "device-1")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if err := g1.Grant(ctx); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	// A new session for the same device starts acknowledged.
	g2, err := NewGate(ctx, store, "device-1")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if !g2.Acknowledged() {
		t.Fatalf("acknowledgement must survive across sessions")
	}

	// Other devices are unaffected.
	g3, err := NewGate(ctx, store, "device-2")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if g3.Acknowledged() {
		t.Fatalf("acknowledgement must be scoped per device")
	}
}

func TestNewGateDegradesToUnacknowledgedOnReadError(t *testing.T) {
	t.Parallel()

	store := &failingStore{readErr: errors.New("db down"), MemoryStore: NewMemoryStore()}
	g, err := NewGate(context.Background(), store, "device-1")
	if err == nil {
		t.Fatalf("expected read error to surface")
	}
	if g == nil {
		t.Fatalf("a usable gate must still be returned")
	}
	if g.Acknowledged() {
		t.Fatalf("gate must default to unacknowledged when the store is unreadable")
	}
}

func TestGrantKeepsInSessionFlagOnWriteError(t *testing.T) {
	t.Parallel()

	store := &failingStore{writeErr: errors.New("db down"), MemoryStore: NewMemoryStore()}
	g, err := NewGate(context.Background(), store, "device-1")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	if err := g.Grant(context.Background()); err == nil {
		t.Fatalf("expected write error to surface")
	}
	if !g.Acknowledged() {
		t.Fatalf("in-session flag must hold even when persistence fails")
	}
}
