// Package reconcile keeps a live view of one conversation's message log
// consistent across refreshes. Optimistic local sends and the authoritative
// store list are merged so a message never shows twice and never disappears
// while its delivery is still settling.
package reconcile

import (
	"sync"
	"time"

	"github.com/nemesisdesk/nemesis/internal/message"
)

// State tells whether a merge is in progress.
type State int

const (
	Idle State = iota
	Reconciling
)

// MatchWindow bounds how far apart in time a local optimistic message and its
// authoritative counterpart may be and still count as the same message.
const MatchWindow = 5 * time.Second

// View is the reconciled message list of one conversation. Safe for
// concurrent use; readers always see a fully merged list, never a partially
// applied refresh.
type View struct {
	mu      sync.Mutex
	state   State
	merged  []message.Message
	pending []message.Message
}

// NewView starts an empty view.
func NewView() *View {
	return &View{}
}

// State reports whether a refresh is currently being merged.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Messages returns a copy of the current merged list.
func (v *View) Messages() []message.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]message.Message, len(v.merged))
	copy(out, v.merged)
	return out
}

// AppendPending adds an optimistic local message. It shows immediately and
// survives refreshes until the authoritative list contains its counterpart.
func (v *View) AppendPending(msg message.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, msg)
	v.merged = append(v.merged, msg)
	message.Sort(v.merged)
}

// MarkFailed flips a tracked pending message to failed in place. The bubble
// stays visible; a failed send is a state the agent must see, not an absence.
func (v *View) MarkFailed(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.pending {
		if v.pending[i].ID == id {
			v.pending[i].Status = message.StatusFailed
		}
	}
	for i := range v.merged {
		if v.merged[i].ID == id {
			v.merged[i].Status = message.StatusFailed
		}
	}
}

// BeginRefresh marks the view as reconciling. Callers pair it with
// EndRefresh around the fetch-and-apply cycle so readers can observe the
// state while the refresh is in flight.
func (v *View) BeginRefresh() {
	v.mu.Lock()
	v.state = Reconciling
	v.mu.Unlock()
}

// EndRefresh returns the view to idle.
func (v *View) EndRefresh() {
	v.mu.Lock()
	v.state = Idle
	v.mu.Unlock()
}

// Apply merges an authoritative refresh into the view. A tracked local
// message is considered settled when the refresh carries a row with the same
// sender, type, and content within MatchWindow; the authoritative row then
// replaces it. Unsettled locals are re-appended so they never flicker out.
// The swap is atomic: readers see the old list or the new one, nothing
// in between.
func (v *View) Apply(authoritative []message.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Failed locals follow the same rule: they stay until the store
	// reflects them.
	var remaining []message.Message
	for _, local := range v.pending {
		if !containsSettled(authoritative, local) {
			remaining = append(remaining, local)
		}
	}

	merged := make([]message.Message, 0, len(authoritative)+len(remaining))
	merged = append(merged, authoritative...)
	merged = append(merged, remaining...)
	message.Sort(merged)

	v.pending = remaining
	v.merged = merged
}

// containsSettled reports whether the authoritative list already carries the
// local message, either by id or by the content heuristic.
func containsSettled(authoritative []message.Message, local message.Message) bool {
	for _, auth := range authoritative {
		if auth.ID == local.ID {
			return true
		}
		if auth.Sender == local.Sender &&
			auth.Type == local.Type &&
			auth.Content == local.Content &&
			absDuration(auth.CreatedAt.Sub(local.CreatedAt)) <= MatchWindow {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
