// Package telegram wraps the external channel API: outbound sends, edits,
// deletes, file URL resolution, and inbound event classification.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// SentMessage is the channel's acknowledgment of an outbound call.
type SentMessage struct {
	// ExternalID is the channel's own message identifier, used later for
	// edit, delete, and reply threading.
	ExternalID string
	// FileID identifies the uploaded attachment, when one was sent.
	FileID string
}

// Client talks to the channel on behalf of one tenant credential. Calls are
// paced by a shared limiter; hitting the channel's rate limit is retryable,
// never fatal, so we avoid it up front.
type Client struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient validates the credential against the channel and returns a client.
func NewClient(log *slog.Logger, token string, sendsPerSecond int) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if sendsPerSecond <= 0 {
		sendsPerSecond = 25
	}
	return &Client{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
		logger:  log.With(slog.String("adapter", "telegram")),
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// SendText delivers a plain text message, optionally as a reply.
func (c *Client) SendText(ctx context.Context, partyID, text string, replyTo int) (SentMessage, error) {
	chatID, err := parseChatID(partyID)
	if err != nil {
		return SentMessage{}, err
	}
	if err := c.wait(ctx); err != nil {
		return SentMessage{}, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if replyTo > 0 {
		msg.ReplyToMessageID = replyTo
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return SentMessage{}, err
	}
	return SentMessage{ExternalID: strconv.Itoa(sent.MessageID)}, nil
}

// SendPhoto uploads image bytes with an optional caption and reply.
func (c *Client) SendPhoto(ctx context.Context, partyID, fileName string, data []byte, caption string, replyTo int) (SentMessage, error) {
	chatID, err := parseChatID(partyID)
	if err != nil {
		return SentMessage{}, err
	}
	if err := c.wait(ctx); err != nil {
		return SentMessage{}, err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	photo.Caption = caption
	if replyTo > 0 {
		photo.ReplyToMessageID = replyTo
	}
	sent, err := c.bot.Send(photo)
	if err != nil {
		return SentMessage{}, err
	}
	result := SentMessage{ExternalID: strconv.Itoa(sent.MessageID)}
	if len(sent.Photo) > 0 {
		result.FileID = pickPhoto(sent.Photo).FileID
	}
	return result, nil
}

// SendDocument uploads generic file bytes with an optional caption and reply.
func (c *Client) SendDocument(ctx context.Context, partyID, fileName string, data []byte, caption string, replyTo int) (SentMessage, error) {
	chatID, err := parseChatID(partyID)
	if err != nil {
		return SentMessage{}, err
	}
	if err := c.wait(ctx); err != nil {
		return SentMessage{}, err
	}
	document := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	document.Caption = caption
	if replyTo > 0 {
		document.ReplyToMessageID = replyTo
	}
	sent, err := c.bot.Send(document)
	if err != nil {
		return SentMessage{}, err
	}
	result := SentMessage{ExternalID: strconv.Itoa(sent.MessageID)}
	if sent.Document != nil {
		result.FileID = sent.Document.FileID
	}
	return result, nil
}

// EditText replaces the text of a previously delivered message.
func (c *Client) EditText(ctx context.Context, partyID, externalMessageID, newText string) error {
	chatID, messageID, err := parseMessageRef(partyID, externalMessageID)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = c.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, newText))
	return err
}

// EditCaption replaces the caption of a delivered attachment message.
func (c *Client) EditCaption(ctx context.Context, partyID, externalMessageID, newCaption string) error {
	chatID, messageID, err := parseMessageRef(partyID, externalMessageID)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = c.bot.Send(tgbotapi.NewEditMessageCaption(chatID, messageID, newCaption))
	return err
}

// DeleteMessage removes a delivered message from the channel.
func (c *Client) DeleteMessage(ctx context.Context, partyID, externalMessageID string) error {
	chatID, messageID, err := parseMessageRef(partyID, externalMessageID)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// ResolveFileURL turns a channel file id into a fetchable URL via the
// channel's file-resolution endpoint.
func (c *Client) ResolveFileURL(ctx context.Context, fileID string) (string, error) {
	if strings.TrimSpace(fileID) == "" {
		return "", fmt.Errorf("file id is required")
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.bot.GetFileDirectURL(fileID)
}

func parseChatID(partyID string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(partyID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram party id must be a chat id: %q", partyID)
	}
	return chatID, nil
}

func parseMessageRef(partyID, externalMessageID string) (int64, int, error) {
	chatID, err := parseChatID(partyID)
	if err != nil {
		return 0, 0, err
	}
	messageID, err := strconv.Atoi(strings.TrimSpace(externalMessageID))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid external message id: %q", externalMessageID)
	}
	return chatID, messageID, nil
}

// pickPhoto selects the richest rendition of a photo set.
func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
