// Package chatlog holds the ordered list of chat entries a session has
// produced. Entries are immutable once appended; the only removal the log
// supports is taking back a transient entry (the loading placeholder) before
// its terminal replacement arrives.
package chatlog

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single chat bubble. IsUser marks entries typed by the user;
// everything else (assistant replies, status notices) is system-authored.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage builds a user-authored entry.
func NewUserMessage(content string) Message {
	return Message{ID: uuid.New(), Content: content, IsUser: true, Timestamp: time.Now()}
}

// NewSystemMessage builds a system-authored entry.
func NewSystemMessage(content string) Message {
	return Message{ID: uuid.New(), Content: content, IsUser: false, Timestamp: time.Now()}
}

// Log is an append-only message list with one de-duplication rule: a
// system-authored entry is suppressed when the current last entry is also
// system-authored and carries identical content. User entries are never
// suppressed or merged.
//
// Log is not safe for concurrent use; the owning session serializes access.
type Log struct {
	entries []Message
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Append adds the entry unless the de-duplication rule suppresses it.
// It reports whether the entry was actually stored.
func (l *Log) Append(msg Message) bool {
	if !msg.IsUser {
		if last, ok := l.Last(); ok && !last.IsUser && last.Content == msg.Content {
			return false
		}
	}
	l.entries = append(l.entries, msg)
	return true
}

// Last returns the most recent entry, if any.
func (l *Log) Last() (Message, bool) {
	if len(l.entries) == 0 {
		return Message{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// RemoveLast takes back the most recent entry, if any.
func (l *Log) RemoveLast() (Message, bool) {
	if len(l.entries) == 0 {
		return Message{}, false
	}
	last := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return last, true
}

// Remove deletes the entry with the given ID wherever it sits and reports
// whether anything was removed. Used to retire the loading placeholder even
// when a connectivity notice landed after it.
func (l *Log) Remove(id uuid.UUID) bool {
	for i, msg := range l.entries {
		if msg.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the entries in append order.
func (l *Log) Snapshot() []Message {
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of stored entries.
func (l *Log) Len() int {
	return len(l.entries)
}
