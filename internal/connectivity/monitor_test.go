package connectivity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// flipProber is a Prober whose answer can be swapped from the test goroutine.
type flipProber struct {
	up atomic.Bool
}

func (p *flipProber) probe(context.Context) bool {
	return p.up.Load()
}

func waitForStatus(t *testing.T, ch <-chan Status, want Status) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected transition to %v, got %v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transition to %v", want)
	}
}

func TestMonitorEmitsOnlyOnTransitions(t *testing.T) {
	t.Parallel()

	p := &flipProber{}
	p.up.Store(true)
	m := NewMonitor(p.probe, time.Millisecond)

	ch, cancel := m.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go m.Run(ctx)

	waitForStatus(t, ch, StatusConnected)

	p.up.Store(false)
	waitForStatus(t, ch, StatusDisconnected)

	p.up.Store(true)
	waitForStatus(t, ch, StatusConnected)

	// Steady state: repeated identical readings must not re-emit.
	select {
	case got := <-ch:
		t.Fatalf("unexpected transition %v while state was steady", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitorStatusTracksLastReading(t *testing.T) {
	t.Parallel()

	p := &flipProber{}
	m := NewMonitor(p.probe, time.Millisecond)

	if got := m.Status(); got != StatusUnknown {
		t.Fatalf("status before Run should be unknown, got %v", got)
	}

	ch, cancel := m.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go m.Run(ctx)

	waitForStatus(t, ch, StatusDisconnected)
	if got := m.Status(); got != StatusDisconnected {
		t.Fatalf("expected disconnected, got %v", got)
	}

	p.up.Store(true)
	waitForStatus(t, ch, StatusConnected)
	if got := m.Status(); got != StatusConnected {
		t.Fatalf("expected connected, got %v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	p := &flipProber{}
	p.up.Store(true)
	m := NewMonitor(p.probe, time.Millisecond)

	ch, cancel := m.Subscribe()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go m.Run(ctx)

	waitForStatus(t, ch, StatusConnected)
	cancel()

	p.up.Store(false)
	// Give the loop time to notice the flip; nothing should arrive.
	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("received %v after unsubscribe", got)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDialProberAgainstClosedPort(t *testing.T) {
	t.Parallel()

	// Port 1 on localhost is practically never listening.
	probe := DialProber("127.0.0.1:1", 200*time.Millisecond)
	if probe(context.Background()) {
		t.Fatalf("probe against a closed port should report unreachable")
	}
}
