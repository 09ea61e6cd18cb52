package chatlog

import (
	"testing"

	"github.com/google/uuid"
)

func TestAppendSuppressesConsecutiveIdenticalSystemEntries(t *testing.T) {
	t.Parallel()

	l := New()
	if !l.Append(NewSystemMessage("you are offline")) {
		t.Fatalf("first system entry should be stored")
	}
	if l.Append(NewSystemMessage("you are offline")) {
		t.Fatalf("identical consecutive system entry should be suppressed")
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", l.Len())
	}
}

func TestAppendNeverSuppressesUserEntries(t *testing.T) {
	t.Parallel()

	l := New()
	if !l.Append(NewUserMessage("pasta")) {
		t.Fatalf("user entry should be stored")
	}
	if !l.Append(NewUserMessage("pasta")) {
		t.Fatalf("identical consecutive user entries must both be stored")
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}
}

func TestAppendAllowsSystemEntryAfterInterveningUserEntry(t *testing.T) {
	t.Parallel()

	l := New()
	l.Append(NewSystemMessage("you are offline"))
	l.Append(NewUserMessage("hello?"))
	if !l.Append(NewSystemMessage("you are offline")) {
		t.Fatalf("system entry after a user entry should be stored even if content repeats")
	}
	if l.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", l.Len())
	}
}

func TestAppendDoesNotSuppressSystemEntryMatchingLastUserEntry(t *testing.T) {
	t.Parallel()

	l := New()
	l.Append(NewUserMessage("600"))
	if !l.Append(NewSystemMessage("600")) {
		t.Fatalf("de-duplication must only compare against system-authored entries")
	}
}

func TestRemoveLast(t *testing.T) {
	t.Parallel()

	l := New()
	if _, ok := l.RemoveLast(); ok {
		t.Fatalf("RemoveLast on empty log should report nothing removed")
	}

	l.Append(NewUserMessage("pasta"))
	placeholder := NewSystemMessage("thinking")
	l.Append(placeholder)

	got, ok := l.RemoveLast()
	if !ok {
		t.Fatalf("expected an entry to be removed")
	}
	if got.ID != placeholder.ID {
		t.Fatalf("RemoveLast returned wrong entry: got %s want %s", got.ID, placeholder.ID)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 entry after RemoveLast, got %d", l.Len())
	}
}

func TestRemoveByID(t *testing.T) {
	t.Parallel()

	l := New()
	placeholder := NewSystemMessage("thinking")
	l.Append(placeholder)
	l.Append(NewSystemMessage("you are offline"))

	if !l.Remove(placeholder.ID) {
		t.Fatalf("expected placeholder to be removed")
	}
	if l.Remove(placeholder.ID) {
		t.Fatalf("second removal of the same ID must be a no-op")
	}
	if l.Remove(uuid.New()) {
		t.Fatalf("removing an unknown ID must be a no-op")
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", l.Len())
	}
	last, _ := l.Last()
	if last.Content != "you are offline" {
		t.Fatalf("surviving entry should be the offline notice, got %q", last.Content)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	l := New()
	l.Append(NewUserMessage("pasta"))
	snap := l.Snapshot()
	snap[0].Content = "mutated"

	got, _ := l.Last()
	if got.Content != "pasta" {
		t.Fatalf("mutating a snapshot must not affect the log")
	}
}

func TestSnapshotPreservesOrder(t *testing.T) {
	t.Parallel()

	l := New()
	l.Append(NewSystemMessage("greeting"))
	l.Append(NewUserMessage("pasta"))
	l.Append(NewSystemMessage("how many calories?"))

	snap := l.Snapshot()
	want := []string{"greeting", "pasta", "how many calories?"}
	if len(snap) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(snap))
	}
	for i, w := range want {
		if snap[i].Content != w {
			t.Fatalf("entry %d: got %q want %q", i, snap[i].Content, w)
		}
	}
}
