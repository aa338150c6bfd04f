// Package ingest turns raw channel updates into stored conversation state.
package ingest

import (
	"context"
	"errors"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nemesisdesk/nemesis/internal/conversation"
	"github.com/nemesisdesk/nemesis/internal/message"
	"github.com/nemesisdesk/nemesis/internal/telegram"
	"github.com/nemesisdesk/nemesis/internal/tenant"
)

// Service is the inbound pipeline: classify, resolve conversation, persist.
// Failures here are logged and swallowed by the webhook handler; the channel
// must always see an acknowledgment or it re-delivers forever.
type Service struct {
	conversations *conversation.Store
	messages      *message.Store
	clients       *telegram.Factory
	logger        *slog.Logger
}

// NewService creates the ingestion pipeline.
func NewService(log *slog.Logger, conversations *conversation.Store, messages *message.Store, clients *telegram.Factory) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		clients:       clients,
		logger:        log.With(slog.String("service", "ingest")),
	}
}

// HandleUpdate processes one webhook update for a resolved tenant. Control
// events are dropped silently. A normalized message is always accepted: the
// conversation is created on first contact and the message row is stored as
// confirmed, since the channel already delivered it.
func (s *Service) HandleUpdate(ctx context.Context, tn tenant.Tenant, update tgbotapi.Update) error {
	in, ok := telegram.NormalizeUpdate(update)
	if !ok {
		s.logger.DebugContext(ctx, "dropping control event", slog.Int("update_id", update.UpdateID))
		return nil
	}

	conv, err := s.conversations.Upsert(ctx, conversation.UpsertInput{
		TenantID:        tn.ID,
		ExternalPartyID: in.PartyID,
		DisplayName:     in.DisplayName,
	})
	if err != nil {
		return err
	}

	input := message.AppendInput{
		ConversationID:    conv.ID,
		Content:           in.Content,
		Type:              in.Kind,
		ExternalMessageID: in.ExternalMessageID,
	}

	if in.Attachment != nil {
		url, err := s.resolveMediaURL(ctx, tn.TelegramToken, in.Attachment.FileID)
		if err != nil {
			// Store the message anyway; the attachment URL can be
			// re-resolved later from the external message id.
			s.logger.WarnContext(ctx, "attachment url resolution failed",
				slog.String("conversation_id", conv.ID), slog.Any("error", err))
		} else {
			input.MediaURL = url
		}
	}

	if in.ReplyToExternalID != "" {
		target, err := s.messages.FindByExternalID(ctx, conv.ID, in.ReplyToExternalID)
		switch {
		case err == nil:
			input.ReplyToID = target.ID
		case errors.Is(err, message.ErrNotFound):
			// Reply target never reached us; keep the message unthreaded.
		default:
			return err
		}
	}

	stored, err := s.messages.AppendCustomer(ctx, input)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "stored inbound message",
		slog.String("tenant_id", tn.ID),
		slog.String("conversation_id", conv.ID),
		slog.String("message_id", stored.ID),
		slog.String("type", string(stored.Type)))
	return nil
}

func (s *Service) resolveMediaURL(ctx context.Context, token, fileID string) (string, error) {
	client, err := s.clients.ClientFor(token)
	if err != nil {
		return "", err
	}
	return client.ResolveFileURL(ctx, fileID)
}
