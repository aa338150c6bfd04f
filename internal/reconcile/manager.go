package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nemesisdesk/nemesis/internal/message"
)

// FetchFunc loads the authoritative message list of a conversation.
type FetchFunc func(ctx context.Context, conversationID string) ([]message.Message, error)

type watched struct {
	view       *View
	cancel     context.CancelFunc
	lastAccess time.Time
}

// Manager keeps one reconciled View per watched conversation, each refreshed
// by its own poller. Dispatcher callbacks feed optimistic sends and failures
// into the matching view between refreshes. A view that nothing reads or
// writes for idleTTL is released so its poller stops hitting the store.
type Manager struct {
	mu       sync.Mutex
	views    map[string]*watched
	root     context.Context
	cancel   context.CancelFunc
	fetch    FetchFunc
	interval time.Duration
	idleTTL  time.Duration
	logger   *slog.Logger
}

// NewManager creates a view manager.
func NewManager(log *slog.Logger, fetch FetchFunc, interval, idleTTL time.Duration) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if idleTTL <= 0 {
		idleTTL = time.Minute
	}
	root, cancel := context.WithCancel(context.Background())
	m := &Manager{
		views:    map[string]*watched{},
		root:     root,
		cancel:   cancel,
		fetch:    fetch,
		interval: interval,
		idleTTL:  idleTTL,
		logger:   log.With(slog.String("service", "reconcile")),
	}
	go m.janitor()
	return m
}

// ViewFor returns the live view of a conversation, starting its poller on
// first access.
func (m *Manager) ViewFor(conversationID string) *View {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.views[conversationID]; ok {
		w.lastAccess = time.Now()
		return w.view
	}

	view := NewView()
	ctx, cancel := context.WithCancel(m.root)
	m.views[conversationID] = &watched{view: view, cancel: cancel, lastAccess: time.Now()}

	poller := NewPoller(m.logger, view, func(ctx context.Context) ([]message.Message, error) {
		return m.fetch(ctx, conversationID)
	}, m.interval)
	go func() {
		_ = poller.Run(ctx)
	}()
	return view
}

// Release stops watching a conversation and drops its view.
func (m *Manager) Release(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.views[conversationID]; ok {
		w.cancel()
		delete(m.views, conversationID)
	}
}

// Close stops every poller.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = map[string]*watched{}
}

// NotePending records an optimistic send into the conversation's view, when
// one is being watched.
func (m *Manager) NotePending(msg message.Message) {
	if view := m.peek(msg.ConversationID); view != nil {
		view.AppendPending(msg)
	}
}

// NoteFailed flips a watched optimistic message to failed.
func (m *Manager) NoteFailed(conversationID, messageID string) {
	if view := m.peek(conversationID); view != nil {
		view.MarkFailed(messageID)
	}
}

func (m *Manager) peek(conversationID string) *View {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.views[conversationID]; ok {
		w.lastAccess = time.Now()
		return w.view
	}
	return nil
}

// janitor releases views nobody touched for idleTTL, so abandoned live
// sessions do not keep polling the store.
func (m *Manager) janitor() {
	ticker := time.NewTicker(m.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-m.root.Done():
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, w := range m.views {
		if now.Sub(w.lastAccess) >= m.idleTTL {
			w.cancel()
			delete(m.views, id)
			m.logger.Debug("released idle view", slog.String("conversation_id", id))
		}
	}
}
