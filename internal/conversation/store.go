// Package conversation owns tenant-scoped conversation records, their
// ordering in the agent queue, and the department access rule.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nemesisdesk/nemesis/internal/access"
	dbpkg "github.com/nemesisdesk/nemesis/internal/db"
	"github.com/nemesisdesk/nemesis/internal/message"
)

const conversationColumns = `
	id, tenant_id, external_party_id, display_name, department,
	urgency, last_message_at, created_at
`

// Store persists conversations.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a conversation store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// UpsertInput identifies the conversation of an inbound event or an
// agent-initiated creation.
type UpsertInput struct {
	TenantID        string
	ExternalPartyID string
	DisplayName     string
	Department      string
}

// Upsert resolves (tenant, external party) to exactly one conversation.
// The insert is a single conditional statement so two first-contact events
// racing each other cannot create duplicates. Existing rows get their display
// name refreshed and their activity bumped.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (Conversation, error) {
	pgTenantID, err := dbpkg.ParseUUID(in.TenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	party := strings.TrimSpace(in.ExternalPartyID)
	if party == "" {
		return Conversation{}, fmt.Errorf("external party id is required")
	}
	department := access.CanonicalDepartment(in.Department)
	if department == "" {
		department = access.DefaultDepartment
	}

	const query = `
		INSERT INTO conversations (tenant_id, external_party_id, display_name, department)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, external_party_id) DO UPDATE
		SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), conversations.display_name),
		    last_message_at = now()
		RETURNING ` + conversationColumns
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, pgTenantID, party, strings.TrimSpace(in.DisplayName), department))
	if err != nil {
		return Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}
	return conv, nil
}

// Get returns one conversation, applying the session's scope uniformly: a
// direct fetch outside the predicate fails with ErrForbidden, never partial
// data.
func (s *Store) Get(ctx context.Context, session access.Session, id string) (Conversation, error) {
	conv, err := s.get(ctx, session.TenantID, id)
	if err != nil {
		return Conversation{}, err
	}
	if !session.CanView(conv.Department) {
		return Conversation{}, ErrForbidden
	}
	return conv, nil
}

func (s *Store) get(ctx context.Context, tenantID, id string) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Conversation{}, ErrNotFound
	}
	pgTenantID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, ErrNotFound
	}
	const query = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND tenant_id = $2
	`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, pgID, pgTenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	return conv, nil
}

// List returns the session's visible conversations within the activity date
// range, ordered by urgency then recency, annotated with unread count and a
// preview of the most recent message.
func (s *Store) List(ctx context.Context, session access.Session, filter ListFilter) ([]Summary, error) {
	pgTenantID, err := dbpkg.ParseUUID(session.TenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	start, end := normalizeRange(filter)

	query := `
		SELECT c.id, c.tenant_id, c.external_party_id, c.display_name, c.department,
		       c.urgency, c.last_message_at, c.created_at,
		       (SELECT count(*) FROM messages m
		        WHERE m.conversation_id = c.id AND m.sender = 'CUSTOMER' AND NOT m.is_read) AS unread,
		       last.content, last.type, last.sender, last.created_at
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT content, type, sender, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) last ON TRUE
		WHERE c.tenant_id = $1
		  AND c.last_message_at BETWEEN $2 AND $3
	`
	args := []any{pgTenantID, start, end}
	if depts := session.Departments(); depts != nil {
		query += ` AND c.department = ANY($4)`
		args = append(args, depts)
	}
	query += ` ORDER BY c.urgency DESC, c.last_message_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary     Summary
			id          pgtype.UUID
			tenantID    pgtype.UUID
			urgency     int16
			lastAt      pgtype.Timestamptz
			createdAt   pgtype.Timestamptz
			lastContent pgtype.Text
			lastType    pgtype.Text
			lastSender  pgtype.Text
			lastMsgAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &tenantID, &summary.ExternalPartyID, &summary.DisplayName,
			&summary.Department, &urgency, &lastAt, &createdAt,
			&summary.UnreadCount, &lastContent, &lastType, &lastSender, &lastMsgAt); err != nil {
			return nil, err
		}
		summary.Urgency = Urgency(urgency)
		summary.ID = id.String()
		summary.TenantID = tenantID.String()
		summary.LastMessageAt = dbpkg.TimeFromPg(lastAt)
		summary.CreatedAt = dbpkg.TimeFromPg(createdAt)

		var last *message.Message
		if lastType.Valid {
			last = &message.Message{
				Content: dbpkg.TextToString(lastContent),
				Type:    message.Type(dbpkg.TextToString(lastType)),
				Sender:  message.Sender(dbpkg.TextToString(lastSender)),
			}
			summary.LastMessageTime = dbpkg.TimeFromPg(lastMsgAt)
		}
		summary.LastMessagePreview = Preview(last)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SetDepartment re-routes a conversation to another department queue. The
// name is stored in canonical form so scope checks stay uniform.
func (s *Store) SetDepartment(ctx context.Context, session access.Session, id, department string) (Conversation, error) {
	department = access.CanonicalDepartment(department)
	if department == "" {
		return Conversation{}, fmt.Errorf("department is required")
	}
	if _, err := s.Get(ctx, session, id); err != nil {
		return Conversation{}, err
	}
	pgID, _ := dbpkg.ParseUUID(id)
	const query = `
		UPDATE conversations SET department = $2 WHERE id = $1
		RETURNING ` + conversationColumns
	return scanConversation(s.pool.QueryRow(ctx, query, pgID, department))
}

// SetUrgency changes the queue priority of a conversation.
func (s *Store) SetUrgency(ctx context.Context, session access.Session, id string, urgency Urgency) (Conversation, error) {
	if _, err := s.Get(ctx, session, id); err != nil {
		return Conversation{}, err
	}
	pgID, _ := dbpkg.ParseUUID(id)
	const query = `
		UPDATE conversations SET urgency = $2 WHERE id = $1
		RETURNING ` + conversationColumns
	return scanConversation(s.pool.QueryRow(ctx, query, pgID, int16(urgency)))
}

// TouchActivity bumps last_message_at so the conversation surfaces in the
// queue. Called by the ingestion and dispatch paths on every message.
func (s *Store) TouchActivity(ctx context.Context, id string) error {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}
	_, err = s.pool.Exec(ctx, `UPDATE conversations SET last_message_at = now() WHERE id = $1`, pgID)
	return err
}

// Delete removes a conversation and, via the schema's cascade, its messages.
// Administrative action; the ingestion path never deletes.
func (s *Store) Delete(ctx context.Context, session access.Session, id string) error {
	if _, err := s.Get(ctx, session, id); err != nil {
		return err
	}
	pgID, _ := dbpkg.ParseUUID(id)
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeRange(filter ListFilter) (time.Time, time.Time) {
	end := filter.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := filter.Start
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}
	return start, end
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id       pgtype.UUID
		tenantID pgtype.UUID
		urgency  int16
		lastAt   pgtype.Timestamptz
		created  pgtype.Timestamptz
		conv     Conversation
	)
	if err := row.Scan(&id, &tenantID, &conv.ExternalPartyID, &conv.DisplayName,
		&conv.Department, &urgency, &lastAt, &created); err != nil {
		return Conversation{}, err
	}
	conv.Urgency = Urgency(urgency)
	conv.ID = id.String()
	conv.TenantID = tenantID.String()
	conv.LastMessageAt = dbpkg.TimeFromPg(lastAt)
	conv.CreatedAt = dbpkg.TimeFromPg(created)
	return conv, nil
}
