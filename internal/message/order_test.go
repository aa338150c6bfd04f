package message

import (
	"testing"
	"time"
)

func TestCompare_TimeOrdersFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := Message{ID: "b", CreatedAt: base, Status: StatusConfirmed}
	later := Message{ID: "a", CreatedAt: base.Add(time.Millisecond), Status: StatusConfirmed}

	if got := Compare(earlier, later); got >= 0 {
		t.Fatalf("expected earlier message to sort first, got %d", got)
	}
	if got := Compare(later, earlier); got <= 0 {
		t.Fatalf("expected later message to sort last, got %d", got)
	}
}

func TestCompare_PendingSortsAfterConfirmedOnTies(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	confirmed := Message{ID: "z", CreatedAt: base, Status: StatusConfirmed}
	pending := Message{ID: "a", CreatedAt: base, Status: StatusPending}

	if got := Compare(confirmed, pending); got >= 0 {
		t.Fatalf("expected confirmed before pending on time tie, got %d", got)
	}
	if got := Compare(pending, confirmed); got <= 0 {
		t.Fatalf("expected pending after confirmed on time tie, got %d", got)
	}
}

func TestCompare_FailedCountsAsSettled(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	failed := Message{ID: "z", CreatedAt: base, Status: StatusFailed}
	pending := Message{ID: "a", CreatedAt: base, Status: StatusPending}

	if got := Compare(failed, pending); got >= 0 {
		t.Fatalf("expected failed before pending on time tie, got %d", got)
	}
}

func TestCompare_IDBreaksRemainingTies(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Message{ID: "aaa", CreatedAt: base, Status: StatusConfirmed}
	b := Message{ID: "bbb", CreatedAt: base, Status: StatusConfirmed}

	if got := Compare(a, b); got >= 0 {
		t.Fatalf("expected lower id first, got %d", got)
	}
	if got := Compare(a, a); got != 0 {
		t.Fatalf("expected identical messages to compare equal, got %d", got)
	}
}

func TestSort_IsDeterministicRegardlessOfInput(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", CreatedAt: base.Add(2 * time.Second), Status: StatusPending},
		{ID: "a", CreatedAt: base, Status: StatusConfirmed},
		{ID: "d", CreatedAt: base.Add(2 * time.Second), Status: StatusConfirmed},
		{ID: "b", CreatedAt: base, Status: StatusConfirmed},
	}
	Sort(msgs)

	want := []string{"a", "b", "d", "c"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, msgs[i].ID)
		}
	}

	// Reversed input must produce the same order.
	reversed := []Message{msgs[3], msgs[2], msgs[1], msgs[0]}
	Sort(reversed)
	for i, id := range want {
		if reversed[i].ID != id {
			t.Fatalf("reversed input position %d: expected %s, got %s", i, id, reversed[i].ID)
		}
	}
}
