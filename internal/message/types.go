package message

import (
	"errors"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "CUSTOMER"
	SenderAgent    Sender = "AGENT"
)

// Type classifies the message payload.
type Type string

const (
	TypeText     Type = "TEXT"
	TypeImage    Type = "IMAGE"
	TypeDocument Type = "DOCUMENT"
	TypeAudio    Type = "AUDIO"
)

// Status tracks delivery state for agent-authored messages. Customer
// messages are confirmed on arrival.
type Status string

const (
	// StatusPending means the message was stored optimistically and the
	// external channel has not confirmed delivery yet.
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	// StatusFailed means delivery failed; the row is kept visible.
	StatusFailed Status = "failed"
)

// DeleteScope selects how far a message deletion propagates.
type DeleteScope string

const (
	DeleteLocalOnly  DeleteScope = "LOCAL_ONLY"
	DeleteEverywhere DeleteScope = "EVERYWHERE"
)

// Message is one entry in a conversation's ordered log.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Sender            Sender    `json:"sender"`
	Content           string    `json:"content,omitempty"`
	Type              Type      `json:"type"`
	MediaURL          string    `json:"media_url,omitempty"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	ReplyToID         string    `json:"reply_to_id,omitempty"`
	IsRead            bool      `json:"is_read"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// Pending reports whether the message is still awaiting channel confirmation.
func (m Message) Pending() bool {
	return m.Status == StatusPending
}

// AppendInput carries the fields needed to store a new message.
type AppendInput struct {
	ConversationID    string
	Content           string
	Type              Type
	MediaURL          string
	ExternalMessageID string
	ReplyToID         string
}

// ErrNotFound means the message does not exist.
var ErrNotFound = errors.New("message not found")
