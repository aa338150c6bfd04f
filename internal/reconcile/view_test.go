package reconcile

import (
	"testing"
	"time"

	"github.com/nemesisdesk/nemesis/internal/message"
)

func TestApply_SettledOptimisticMessageShowsOnce(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	view := NewView()
	view.Apply([]message.Message{
		{ID: "m1", Sender: message.SenderCustomer, Type: message.TypeText, Content: "oi", Status: message.StatusConfirmed, CreatedAt: base},
	})

	view.AppendPending(message.Message{
		ID: "local-1", Sender: message.SenderAgent, Type: message.TypeText,
		Content: "como posso ajudar?", Status: message.StatusPending, CreatedAt: base.Add(time.Second),
	})

	// Authoritative refresh arrives 50ms later with the stored row.
	view.Apply([]message.Message{
		{ID: "m1", Sender: message.SenderCustomer, Type: message.TypeText, Content: "oi", Status: message.StatusConfirmed, CreatedAt: base},
		{ID: "m2", Sender: message.SenderAgent, Type: message.TypeText, Content: "como posso ajudar?", Status: message.StatusConfirmed, CreatedAt: base.Add(time.Second + 50*time.Millisecond)},
	})

	msgs := view.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after reconciliation, got %d: %+v", len(msgs), msgs)
	}
	if msgs[1].ID != "m2" || msgs[1].Status != message.StatusConfirmed {
		t.Fatalf("expected authoritative row to replace the optimistic one, got %+v", msgs[1])
	}
}

func TestApply_UnsettledPendingSurvivesRefresh(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	view := NewView()
	view.AppendPending(message.Message{
		ID: "local-1", Sender: message.SenderAgent, Type: message.TypeText,
		Content: "um momento", Status: message.StatusPending, CreatedAt: base,
	})

	// Refresh has not caught the send yet.
	view.Apply([]message.Message{
		{ID: "m1", Sender: message.SenderCustomer, Type: message.TypeText, Content: "oi", Status: message.StatusConfirmed, CreatedAt: base.Add(-time.Second)},
	})

	msgs := view.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected pending message to survive the refresh, got %d messages", len(msgs))
	}
	if msgs[1].ID != "local-1" {
		t.Fatalf("expected pending message last, got %+v", msgs[1])
	}
}

func TestApply_MatchWindowBoundsTheHeuristic(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	view := NewView()
	view.AppendPending(message.Message{
		ID: "local-1", Sender: message.SenderAgent, Type: message.TypeText,
		Content: "ok", Status: message.StatusPending, CreatedAt: base,
	})

	// Same content but far outside the window: a genuinely distinct message.
	view.Apply([]message.Message{
		{ID: "m1", Sender: message.SenderAgent, Type: message.TypeText, Content: "ok", Status: message.StatusConfirmed, CreatedAt: base.Add(time.Minute)},
	})

	if msgs := view.Messages(); len(msgs) != 2 {
		t.Fatalf("expected distant duplicate content to stay separate, got %d messages", len(msgs))
	}
}

func TestMarkFailed_FailedBubbleStaysVisible(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	view := NewView()
	view.AppendPending(message.Message{
		ID: "local-1", Sender: message.SenderAgent, Type: message.TypeText,
		Content: "mensagem perdida?", Status: message.StatusPending, CreatedAt: base,
	})
	view.MarkFailed("local-1")

	msgs := view.Messages()
	if len(msgs) != 1 || msgs[0].Status != message.StatusFailed {
		t.Fatalf("expected a visible failed message, got %+v", msgs)
	}

	// Refreshes that do not carry the row must not erase the failure.
	view.Apply(nil)
	msgs = view.Messages()
	if len(msgs) != 1 || msgs[0].Status != message.StatusFailed {
		t.Fatalf("expected failed message to survive refresh, got %+v", msgs)
	}

	// Once the store reflects the failed row the local copy retires.
	view.Apply([]message.Message{
		{ID: "local-1", Sender: message.SenderAgent, Type: message.TypeText, Content: "mensagem perdida?", Status: message.StatusFailed, CreatedAt: base},
	})
	if msgs := view.Messages(); len(msgs) != 1 {
		t.Fatalf("expected single settled failed message, got %d", len(msgs))
	}
}

func TestApply_InterleavedRefreshKeepsDisplayOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	view := NewView()
	view.AppendPending(message.Message{
		ID: "local-1", Sender: message.SenderAgent, Type: message.TypeText,
		Content: "respondendo", Status: message.StatusPending, CreatedAt: base,
	})

	// A customer message written in the same instant sorts before the
	// still-pending agent message.
	view.Apply([]message.Message{
		{ID: "m9", Sender: message.SenderCustomer, Type: message.TypeText, Content: "alo", Status: message.StatusConfirmed, CreatedAt: base},
	})

	msgs := view.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m9" || msgs[1].ID != "local-1" {
		t.Fatalf("expected confirmed-before-pending on time tie, got %s then %s", msgs[0].ID, msgs[1].ID)
	}
}

func TestStateIsIdleBetweenRefreshes(t *testing.T) {
	t.Parallel()

	view := NewView()
	if view.State() != Idle {
		t.Fatal("new view should be idle")
	}
	view.Apply(nil)
	if view.State() != Idle {
		t.Fatal("view should return to idle after a refresh")
	}
}
