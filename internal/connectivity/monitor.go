// Package connectivity watches network reachability with a periodic probe and
// fans out state transitions to subscribers. Duplicate readings of the same
// state are absorbed here; subscribers only ever see changes.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the last observed reachability state.
type Status int

const (
	// StatusUnknown is the state before the first probe completes.
	StatusUnknown Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Prober reports whether the network is reachable right now.
type Prober func(ctx context.Context) bool

// DialProber probes by opening a TCP connection to addr. The API host itself
// is the most honest reachability signal the service has.
func DialProber(addr string, timeout time.Duration) Prober {
	return func(ctx context.Context) bool {
		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// subscriber channels are buffered; transitions are rare and consumers drain
// promptly, but a stalled consumer must never block the probe loop.
const subscriberBuffer = 16

// Monitor runs the probe loop and owns the shared ConnectivityState. It is
// safe for concurrent use: the probe loop writes, handlers and sessions read.
type Monitor struct {
	probe    Prober
	interval time.Duration

	mu      sync.Mutex
	status  Status
	subs    map[int]chan Status
	nextSub int
}

// NewMonitor builds a monitor; Run must be called for it to do anything.
func NewMonitor(probe Prober, interval time.Duration) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		status:   StatusUnknown,
		subs:     make(map[int]chan Status),
	}
}

// Run probes immediately and then on every tick until ctx is done. It always
// returns ctx.Err, which makes it a drop-in errgroup task.
func (m *Monitor) Run(ctx context.Context) error {
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Status returns the last observed state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers for transition events. The returned cancel func must be
// called when the subscriber goes away.
func (m *Monitor) Subscribe() (<-chan Status, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Status, subscriberBuffer)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Monitor) check(ctx context.Context) {
	next := StatusDisconnected
	if m.probe(ctx) {
		next = StatusConnected
	}

	m.mu.Lock()
	prev := m.status
	if next == prev {
		m.mu.Unlock()
		return
	}
	m.status = next
	subs := make([]chan Status, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("Connectivity changed")

	for _, ch := range subs {
		select {
		case ch <- next:
		default:
			log.Warn().Msg("Connectivity subscriber buffer full, dropping transition")
		}
	}
}
