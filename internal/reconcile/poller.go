package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/nemesisdesk/nemesis/internal/message"
)

// Fetcher loads the authoritative message list of the watched conversation.
type Fetcher func(ctx context.Context) ([]message.Message, error)

// Poller refreshes a View on a fixed interval until its context is canceled.
// A failed fetch skips the cycle; the view keeps serving the last good merge.
type Poller struct {
	view     *View
	fetch    Fetcher
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller for one view.
func NewPoller(log *slog.Logger, view *View, fetch Fetcher, interval time.Duration) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		view:     view,
		fetch:    fetch,
		interval: interval,
		logger:   log.With(slog.String("service", "reconcile")),
	}
}

// Run polls until ctx is done. It refreshes once immediately so the view is
// never empty longer than one fetch.
func (p *Poller) Run(ctx context.Context) error {
	p.refresh(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	p.view.BeginRefresh()
	defer p.view.EndRefresh()
	authoritative, err := p.fetch(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "refresh fetch failed", slog.Any("error", err))
		return
	}
	p.view.Apply(authoritative)
}
