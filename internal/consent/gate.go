// Package consent gates outbound model calls behind a one-time user
// acknowledgement. The flag is persisted per device so the disclosure is shown
// at most once across launches; a message submitted before the user has
// acknowledged is parked, not dropped.
package consent

import (
	"context"
	"fmt"
)

// Decision is the answer to a send request.
type Decision int

const (
	// Proceed means the caller may dispatch the text immediately.
	Proceed Decision = iota

	// NeedsConsent means the text was parked and the caller must surface the
	// consent disclosure before anything leaves the device.
	NeedsConsent
)

// Store persists the acknowledged flag per device. Implementations live in
// internal/database (Postgres) and in this package (in-memory).
type Store interface {
	// Acknowledged reports whether the device has accepted the disclosure.
	Acknowledged(ctx context.Context, deviceID string) (bool, error)

	// SetAcknowledged marks the device as having accepted the disclosure.
	SetAcknowledged(ctx context.Context, deviceID string) error
}

// PendingSend holds a message that arrived before consent was granted.
type PendingSend struct {
	Text    string
	Waiting bool
}

// Gate tracks the acknowledged flag and at most one pending send for a single
// device session. The owning session serializes all calls; Gate does no
// locking of its own.
type Gate struct {
	store        Store
	deviceID     string
	acknowledged bool
	pending      PendingSend
}

// NewGate reads the persisted flag for the device and returns a ready gate.
// A store read failure degrades to "not acknowledged" so the worst case is
// showing the disclosure again, never skipping it.
func NewGate(ctx context.Context, store Store, deviceID string) (*Gate, error) {
	acked, err := store.Acknowledged(ctx, deviceID)
	if err != nil {
		return &Gate{store: store, deviceID: deviceID}, fmt.Errorf("read consent flag: %w", err)
	}
	return &Gate{store: store, deviceID: deviceID, acknowledged: acked}, nil
}

// RequestSend decides whether text may be dispatched. When consent is missing
// the text is parked and NeedsConsent is returned. A second request while one
// is already parked is a no-op: the first pending text wins and the caller
// still gets NeedsConsent.
func (g *Gate) RequestSend(text string) Decision {
	if g.acknowledged {
		return Proceed
	}
	if !g.pending.Waiting {
		g.pending = PendingSend{Text: text, Waiting: true}
	}
	return NeedsConsent
}

// Grant records the acknowledgement and persists it. It does not dispatch the
// pending text; that is FlushPending's job. Once set the flag never reverts
// within the session, even if persistence fails; the cost of a lost write is
// one extra disclosure on the next launch.
func (g *Gate) Grant(ctx context.Context) error {
	g.acknowledged = true
	if err := g.store.SetAcknowledged(ctx, g.deviceID); err != nil {
		return fmt.Errorf("persist consent flag: %w", err)
	}
	return nil
}

// FlushPending returns-and-clears the parked text, if any.
func (g *Gate) FlushPending() (string, bool) {
	if !g.pending.Waiting {
		return "", false
	}
	text := g.pending.Text
	g.pending = PendingSend{}
	return text, true
}

// CancelPending discards the parked text without sending it.
func (g *Gate) CancelPending() {
	g.pending = PendingSend{}
}

// Acknowledged reports the in-session flag.
func (g *Gate) Acknowledged() bool {
	return g.acknowledged
}

// Waiting reports whether a send is parked behind the disclosure.
func (g *Gate) Waiting() bool {
	return g.pending.Waiting
}
