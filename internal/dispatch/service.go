// Package dispatch delivers agent-authored messages to the external channel.
// The store is written first; the channel call comes after, and its outcome
// only updates the delivery status. An unreachable channel never loses what
// the agent typed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nemesisdesk/nemesis/internal/access"
	"github.com/nemesisdesk/nemesis/internal/conversation"
	"github.com/nemesisdesk/nemesis/internal/message"
	"github.com/nemesisdesk/nemesis/internal/telegram"
	"github.com/nemesisdesk/nemesis/internal/tenant"
)

var (
	// ErrPayloadTooLarge means the attachment exceeds the channel's upload
	// limit. Checked before anything is stored or sent.
	ErrPayloadTooLarge = errors.New("attachment exceeds size limit")
	// ErrChannelUnavailable wraps a delivery failure. The message is already
	// stored and marked failed when this is returned.
	ErrChannelUnavailable = errors.New("external channel unavailable")
	// ErrEmptyMessage means the send had neither content nor attachment.
	ErrEmptyMessage = errors.New("message needs content or an attachment")
)

// Channel is the outbound surface of one tenant's channel client.
type Channel interface {
	SendText(ctx context.Context, partyID, text string, replyTo int) (telegram.SentMessage, error)
	SendPhoto(ctx context.Context, partyID, fileName string, data []byte, caption string, replyTo int) (telegram.SentMessage, error)
	SendDocument(ctx context.Context, partyID, fileName string, data []byte, caption string, replyTo int) (telegram.SentMessage, error)
	EditText(ctx context.Context, partyID, externalMessageID, newText string) error
	EditCaption(ctx context.Context, partyID, externalMessageID, newCaption string) error
	DeleteMessage(ctx context.Context, partyID, externalMessageID string) error
	ResolveFileURL(ctx context.Context, fileID string) (string, error)
}

// ChannelResolver yields the channel client for a tenant credential.
type ChannelResolver interface {
	ChannelFor(token string) (Channel, error)
}

type factoryResolver struct {
	factory *telegram.Factory
}

func (r factoryResolver) ChannelFor(token string) (Channel, error) {
	return r.factory.ClientFor(token)
}

// NewTelegramResolver adapts the client factory to the resolver interface.
func NewTelegramResolver(factory *telegram.Factory) ChannelResolver {
	return factoryResolver{factory: factory}
}

// ConversationReader is the slice of the conversation store the dispatcher
// needs.
type ConversationReader interface {
	Get(ctx context.Context, session access.Session, id string) (conversation.Conversation, error)
	TouchActivity(ctx context.Context, id string) error
}

// MessageWriter is the slice of the message store the dispatcher needs.
type MessageWriter interface {
	Get(ctx context.Context, id string) (message.Message, error)
	AppendAgent(ctx context.Context, in message.AppendInput) (message.Message, error)
	Edit(ctx context.Context, id, newContent string) (message.Message, error)
	ConfirmDelivery(ctx context.Context, id, externalID, mediaURL, content string) (message.Message, error)
	MarkFailed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// TenantReader resolves the tenant owning the session, for its credential.
type TenantReader interface {
	Get(ctx context.Context, tenantID string) (tenant.Tenant, error)
}

// DeliveryObserver is told about optimistic sends and their failures, so a
// live view can show them between store refreshes.
type DeliveryObserver interface {
	NotePending(msg message.Message)
	NoteFailed(conversationID, messageID string)
}

// Upload is an attachment received from the agent's request.
type Upload struct {
	FileName string
	Mime     string
	Data     []byte
}

// SendInput is one outbound message from an agent.
type SendInput struct {
	Content    string
	Attachment *Upload
	// ReplyToID is the local id of the message being replied to. If that
	// message has no channel-side id the reply link is kept locally and the
	// channel receives a plain send.
	ReplyToID string
}

// Service orchestrates the store-then-deliver sequence.
type Service struct {
	conversations      ConversationReader
	messages           MessageWriter
	tenants            TenantReader
	channels           ChannelResolver
	observer           DeliveryObserver
	maxAttachmentBytes int64
	logger             *slog.Logger
}

// SetObserver attaches an optional delivery observer.
func (s *Service) SetObserver(observer DeliveryObserver) {
	s.observer = observer
}

// NewService creates the dispatcher.
func NewService(log *slog.Logger, conversations ConversationReader, messages MessageWriter, tenants TenantReader, channels ChannelResolver, maxAttachmentBytes int64) *Service {
	if log == nil {
		log = slog.Default()
	}
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = 20 << 20
	}
	return &Service{
		conversations:      conversations,
		messages:           messages,
		tenants:            tenants,
		channels:           channels,
		maxAttachmentBytes: maxAttachmentBytes,
		logger:             log.With(slog.String("service", "dispatch")),
	}
}

// Send stores the agent's message and attempts channel delivery. The returned
// message always reflects the stored row; when delivery fails the row is
// marked failed and the error wraps ErrChannelUnavailable.
func (s *Service) Send(ctx context.Context, session access.Session, conversationID string, in SendInput) (message.Message, error) {
	if strings.TrimSpace(in.Content) == "" && in.Attachment == nil {
		return message.Message{}, ErrEmptyMessage
	}
	if in.Attachment != nil && int64(len(in.Attachment.Data)) > s.maxAttachmentBytes {
		return message.Message{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(in.Attachment.Data))
	}

	conv, err := s.conversations.Get(ctx, session, conversationID)
	if err != nil {
		return message.Message{}, err
	}

	msgType := message.TypeText
	if in.Attachment != nil {
		msgType = message.TypeDocument
		if strings.HasPrefix(in.Attachment.Mime, "image/") {
			msgType = message.TypeImage
		}
	}

	replyExternal := 0
	replyLocal := ""
	if in.ReplyToID != "" {
		target, err := s.messages.Get(ctx, in.ReplyToID)
		if err != nil {
			return message.Message{}, err
		}
		if target.ConversationID != conv.ID {
			return message.Message{}, message.ErrNotFound
		}
		replyLocal = target.ID
		if target.ExternalMessageID != "" {
			if id, convErr := strconv.Atoi(target.ExternalMessageID); convErr == nil {
				replyExternal = id
			}
		}
	}

	stored, err := s.messages.AppendAgent(ctx, message.AppendInput{
		ConversationID: conv.ID,
		Content:        in.Content,
		Type:           msgType,
		ReplyToID:      replyLocal,
	})
	if err != nil {
		return message.Message{}, err
	}
	if err := s.conversations.TouchActivity(ctx, conv.ID); err != nil {
		s.logger.WarnContext(ctx, "activity bump failed", slog.String("conversation_id", conv.ID), slog.Any("error", err))
	}
	if s.observer != nil {
		s.observer.NotePending(stored)
	}

	channel, err := s.channelFor(ctx, session.TenantID)
	if err != nil {
		return s.failDelivery(ctx, stored, err)
	}

	var sent telegram.SentMessage
	switch msgType {
	case message.TypeText:
		sent, err = channel.SendText(ctx, conv.ExternalPartyID, in.Content, replyExternal)
	case message.TypeImage:
		sent, err = channel.SendPhoto(ctx, conv.ExternalPartyID, in.Attachment.FileName, in.Attachment.Data, in.Content, replyExternal)
	default:
		sent, err = channel.SendDocument(ctx, conv.ExternalPartyID, in.Attachment.FileName, in.Attachment.Data, in.Content, replyExternal)
	}
	if err != nil {
		return s.failDelivery(ctx, stored, err)
	}

	mediaURL := ""
	if sent.FileID != "" {
		if url, resolveErr := channel.ResolveFileURL(ctx, sent.FileID); resolveErr == nil {
			mediaURL = url
		} else {
			s.logger.WarnContext(ctx, "media url resolution failed", slog.String("message_id", stored.ID), slog.Any("error", resolveErr))
		}
	}

	confirmed, err := s.messages.ConfirmDelivery(ctx, stored.ID, sent.ExternalID, mediaURL, "")
	if err != nil {
		return stored, err
	}
	return confirmed, nil
}

// Edit updates message content locally and propagates to the channel when the
// message was delivered. Channel-side propagation is best effort.
func (s *Service) Edit(ctx context.Context, session access.Session, messageID, newContent string) (message.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return message.Message{}, ErrEmptyMessage
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	conv, err := s.conversations.Get(ctx, session, msg.ConversationID)
	if err != nil {
		return message.Message{}, err
	}

	edited, err := s.messages.Edit(ctx, msg.ID, newContent)
	if err != nil {
		return message.Message{}, err
	}

	if msg.Sender == message.SenderAgent && msg.ExternalMessageID != "" {
		channel, chanErr := s.channelFor(ctx, session.TenantID)
		if chanErr == nil {
			if msg.Type == message.TypeText {
				chanErr = channel.EditText(ctx, conv.ExternalPartyID, msg.ExternalMessageID, newContent)
			} else {
				chanErr = channel.EditCaption(ctx, conv.ExternalPartyID, msg.ExternalMessageID, newContent)
			}
		}
		if chanErr != nil {
			s.logger.WarnContext(ctx, "channel edit failed", slog.String("message_id", msg.ID), slog.Any("error", chanErr))
		}
	}
	return edited, nil
}

// Delete removes a message. Scope EVERYWHERE also deletes the channel copy;
// without a channel-side id, or when the channel call fails, the delete
// degrades to local-only rather than failing.
func (s *Service) Delete(ctx context.Context, session access.Session, messageID string, scope message.DeleteScope) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	conv, err := s.conversations.Get(ctx, session, msg.ConversationID)
	if err != nil {
		return err
	}

	if scope == message.DeleteEverywhere && msg.ExternalMessageID != "" {
		channel, chanErr := s.channelFor(ctx, session.TenantID)
		if chanErr == nil {
			chanErr = channel.DeleteMessage(ctx, conv.ExternalPartyID, msg.ExternalMessageID)
		}
		if chanErr != nil {
			s.logger.WarnContext(ctx, "channel delete failed, removing locally only",
				slog.String("message_id", msg.ID), slog.Any("error", chanErr))
		}
	}
	return s.messages.Delete(ctx, msg.ID)
}

// NotifyDepartmentChange tells the customer their conversation moved to
// another department. Best effort; a failed notice never blocks the move.
func (s *Service) NotifyDepartmentChange(ctx context.Context, session access.Session, conv conversation.Conversation, department string) {
	channel, err := s.channelFor(ctx, session.TenantID)
	if err != nil {
		s.logger.WarnContext(ctx, "department notice skipped", slog.String("conversation_id", conv.ID), slog.Any("error", err))
		return
	}
	notice := fmt.Sprintf("Você foi transferido para o departamento %s.", department)
	if _, err := channel.SendText(ctx, conv.ExternalPartyID, notice, 0); err != nil {
		s.logger.WarnContext(ctx, "department notice failed", slog.String("conversation_id", conv.ID), slog.Any("error", err))
	}
}

func (s *Service) channelFor(ctx context.Context, tenantID string) (Channel, error) {
	tn, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tn.TelegramToken) == "" {
		return nil, tenant.ErrMisconfigured
	}
	return s.channels.ChannelFor(tn.TelegramToken)
}

func (s *Service) failDelivery(ctx context.Context, stored message.Message, cause error) (message.Message, error) {
	if err := s.messages.MarkFailed(ctx, stored.ID); err != nil {
		s.logger.ErrorContext(ctx, "mark failed did not apply", slog.String("message_id", stored.ID), slog.Any("error", err))
	}
	stored.Status = message.StatusFailed
	if s.observer != nil {
		s.observer.NoteFailed(stored.ConversationID, stored.ID)
	}
	s.logger.WarnContext(ctx, "channel delivery failed",
		slog.String("message_id", stored.ID), slog.Any("error", cause))
	return stored, fmt.Errorf("%w: %v", ErrChannelUnavailable, cause)
}
