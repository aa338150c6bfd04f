// Package message provides the ordered, append-only message log of a
// conversation.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/nemesisdesk/nemesis/internal/db"
)

const messageColumns = `
	id, conversation_id, sender, content, type, media_url,
	external_message_id, reply_to_id, is_read, status, created_at
`

// Store persists and reads messages.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a message store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "message")),
	}
}

// AppendCustomer stores an inbound customer message. Once normalized it is
// never rejected for business reasons. The row is confirmed immediately; the
// external channel already delivered it.
func (s *Store) AppendCustomer(ctx context.Context, in AppendInput) (Message, error) {
	return s.append(ctx, in, SenderCustomer, false, StatusConfirmed)
}

// AppendAgent stores an optimistic agent message. The id assigned here is
// final; the external message id is filled in later by the dispatcher.
func (s *Store) AppendAgent(ctx context.Context, in AppendInput) (Message, error) {
	return s.append(ctx, in, SenderAgent, true, StatusPending)
}

func (s *Store) append(ctx context.Context, in AppendInput, sender Sender, read bool, status Status) (Message, error) {
	pgConvID, err := dbpkg.ParseUUID(in.ConversationID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	pgReplyTo := pgtype.UUID{}
	if in.ReplyToID != "" {
		pgReplyTo, err = dbpkg.ParseUUID(in.ReplyToID)
		if err != nil {
			return Message{}, fmt.Errorf("invalid reply-to id: %w", err)
		}
	}
	msgType := in.Type
	if msgType == "" {
		msgType = TypeText
	}

	const query = `
		INSERT INTO messages (conversation_id, sender, content, type, media_url,
		                      external_message_id, reply_to_id, is_read, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + messageColumns
	row := s.pool.QueryRow(ctx, query,
		pgConvID,
		string(sender),
		dbpkg.ToPgText(in.Content),
		string(msgType),
		dbpkg.ToPgText(in.MediaURL),
		dbpkg.ToPgText(in.ExternalMessageID),
		pgReplyTo,
		read,
		string(status),
	)
	return scanMessage(row)
}

// ListByConversation returns the full ordered log of a conversation.
// Ordering matches Compare: created_at, then pending-last, then id.
func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, (status = 'pending') ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, pgConvID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Get returns a single message by id.
func (s *Store) Get(ctx context.Context, id string) (Message, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Message{}, ErrNotFound
	}
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, pgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return msg, nil
}

// FindByExternalID resolves the channel's message id to the local row within
// one conversation. Used to thread replies arriving from the channel.
func (s *Store) FindByExternalID(ctx context.Context, conversationID, externalID string) (Message, error) {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Message{}, ErrNotFound
	}
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND external_message_id = $2
	`
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, pgConvID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return msg, nil
}

// MarkRead flips all unread customer messages of a conversation to read.
// Idempotent.
func (s *Store) MarkRead(ctx context.Context, conversationID string) error {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	const query = `
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1 AND sender = 'CUSTOMER' AND NOT is_read
	`
	_, err = s.pool.Exec(ctx, query, pgConvID)
	return err
}

// Edit replaces the content of a message. Ordering position is unchanged.
func (s *Store) Edit(ctx context.Context, id, newContent string) (Message, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Message{}, ErrNotFound
	}
	const query = `
		UPDATE messages SET content = $2 WHERE id = $1
		RETURNING ` + messageColumns
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, pgID, dbpkg.ToPgText(newContent)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return msg, nil
}

// ConfirmDelivery records the external channel's message id, the resolved
// attachment URL, and the final content once the dispatcher hears back.
// Empty mediaURL and content leave the stored values untouched.
func (s *Store) ConfirmDelivery(ctx context.Context, id, externalID, mediaURL, content string) (Message, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Message{}, ErrNotFound
	}
	const query = `
		UPDATE messages
		SET external_message_id = $2,
		    media_url = COALESCE(NULLIF($3, ''), media_url),
		    content = COALESCE(NULLIF($4, ''), content),
		    status = 'confirmed'
		WHERE id = $1
		RETURNING ` + messageColumns
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, pgID, dbpkg.ToPgText(externalID), mediaURL, content))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return msg, nil
}

// MarkFailed annotates a message whose channel delivery failed. The row is
// kept so the agent's typed intent never silently vanishes.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET status = 'failed' WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a message row. Channel-side propagation is the dispatcher's
// concern.
func (s *Store) Delete(ctx context.Context, id string) error {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (Message, error) {
	var (
		id         pgtype.UUID
		convID     pgtype.UUID
		sender     string
		content    pgtype.Text
		msgType    string
		mediaURL   pgtype.Text
		externalID pgtype.Text
		replyTo    pgtype.UUID
		status     string
		createdAt  pgtype.Timestamptz
		msg        Message
	)
	if err := row.Scan(&id, &convID, &sender, &content, &msgType, &mediaURL,
		&externalID, &replyTo, &msg.IsRead, &status, &createdAt); err != nil {
		return Message{}, err
	}
	msg.ID = id.String()
	msg.ConversationID = convID.String()
	msg.Sender = Sender(sender)
	msg.Content = dbpkg.TextToString(content)
	msg.Type = Type(msgType)
	msg.MediaURL = dbpkg.TextToString(mediaURL)
	msg.ExternalMessageID = dbpkg.TextToString(externalID)
	if replyTo.Valid {
		msg.ReplyToID = replyTo.String()
	}
	msg.Status = Status(status)
	msg.CreatedAt = dbpkg.TimeFromPg(createdAt)
	return msg, nil
}
