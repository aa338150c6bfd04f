package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nemesisdesk/nemesis/internal/message"
)

func TestPoller_RefreshesUntilCanceled(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	view := NewView()
	poller := NewPoller(nil, view, func(context.Context) ([]message.Message, error) {
		fetches.Add(1)
		return []message.Message{
			{ID: "m1", Sender: message.SenderCustomer, Type: message.TypeText, Content: "oi", Status: message.StatusConfirmed, CreatedAt: time.Now().UTC()},
		}, nil
	}, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := poller.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if fetches.Load() < 2 {
		t.Fatalf("expected repeated fetches, got %d", fetches.Load())
	}
	if msgs := view.Messages(); len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("expected view to hold the fetched list, got %+v", msgs)
	}
}

func TestPoller_StateIsReconcilingWhileRefreshInFlight(t *testing.T) {
	t.Parallel()

	view := NewView()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	poller := NewPoller(nil, view, func(ctx context.Context) ([]message.Message, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = poller.Run(ctx)
	}()

	<-started
	if view.State() != Reconciling {
		t.Fatal("expected view to report reconciling during an in-flight refresh")
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for view.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatal("expected view to return to idle after the refresh")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPoller_FailedFetchKeepsLastGoodMerge(t *testing.T) {
	t.Parallel()

	view := NewView()
	view.Apply([]message.Message{
		{ID: "m1", Sender: message.SenderCustomer, Type: message.TypeText, Content: "oi", Status: message.StatusConfirmed, CreatedAt: time.Now().UTC()},
	})

	poller := NewPoller(nil, view, func(context.Context) ([]message.Message, error) {
		return nil, errors.New("store unreachable")
	}, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = poller.Run(ctx)

	if msgs := view.Messages(); len(msgs) != 1 {
		t.Fatalf("failed fetches must not clear the view, got %d messages", len(msgs))
	}
}
