package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Urgency is an ordered priority tag: normal < attention < urgent.
type Urgency int16

const (
	UrgencyNormal    Urgency = 0
	UrgencyAttention Urgency = 1
	UrgencyUrgent    Urgency = 2
)

// ParseUrgency converts an API string to an Urgency level.
func ParseUrgency(raw string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "normal", "0":
		return UrgencyNormal, nil
	case "attention", "1":
		return UrgencyAttention, nil
	case "urgent", "2":
		return UrgencyUrgent, nil
	default:
		return UrgencyNormal, fmt.Errorf("unknown urgency level: %q", raw)
	}
}

// String returns the API name of the urgency level.
func (u Urgency) String() string {
	switch u {
	case UrgencyUrgent:
		return "urgent"
	case UrgencyAttention:
		return "attention"
	default:
		return "normal"
	}
}

// Conversation is the persistent thread between one external party and one
// tenant. (TenantID, ExternalPartyID) is unique; re-contact from the same
// party always resolves to the same row.
type Conversation struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	ExternalPartyID string    `json:"external_party_id"`
	DisplayName     string    `json:"display_name"`
	Department      string    `json:"department"`
	Urgency         Urgency   `json:"urgency"`
	LastMessageAt   time.Time `json:"last_message_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Summary is a conversation annotated for the agent queue listing.
type Summary struct {
	Conversation
	UnreadCount        int       `json:"unread_count"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageTime    time.Time `json:"last_message_time,omitzero"`
}

// ListFilter bounds a conversation listing by activity date range.
type ListFilter struct {
	Start time.Time
	End   time.Time
}

var (
	// ErrNotFound means the conversation does not exist within the tenant.
	ErrNotFound = errors.New("conversation not found")
	// ErrForbidden means the conversation exists but lies outside the
	// session's department scope.
	ErrForbidden = errors.New("conversation outside access scope")
)
