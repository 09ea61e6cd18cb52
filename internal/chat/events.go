package chat

import (
	"github.com/nutrichat/nutrichat-api/internal/chatlog"
)

// EventKind names a session state change delivered to subscribers.
type EventKind string

const (
	EventMessageAppended     EventKind = "message_appended"
	EventMessageRemoved      EventKind = "message_removed"
	EventConnectivityChanged EventKind = "connectivity_changed"
	EventConsentRequired     EventKind = "consent_required"
)

// Event is what session subscribers receive. It is serialized verbatim onto
// the WebSocket stream, so only the fields for the given kind are populated.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Message    *chatlog.Message `json:"message,omitempty"`
	MessageID  string           `json:"message_id,omitempty"`
	Connected  bool             `json:"connected,omitempty"`
	Disclosure string           `json:"disclosure,omitempty"`
}
