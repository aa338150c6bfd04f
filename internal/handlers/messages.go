package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nemesisdesk/nemesis/internal/auth"
	"github.com/nemesisdesk/nemesis/internal/conversation"
	"github.com/nemesisdesk/nemesis/internal/dispatch"
	"github.com/nemesisdesk/nemesis/internal/message"
	"github.com/nemesisdesk/nemesis/internal/reconcile"
)

// MessageHandler serves the per-conversation message log and outbound sends.
type MessageHandler struct {
	conversations      *conversation.Store
	messages           *message.Store
	dispatcher         *dispatch.Service
	views              *reconcile.Manager
	maxAttachmentBytes int64
	logger             *slog.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(log *slog.Logger, conversations *conversation.Store, messages *message.Store, dispatcher *dispatch.Service, views *reconcile.Manager, maxAttachmentBytes int64) *MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = 20 << 20
	}
	return &MessageHandler{
		conversations:      conversations,
		messages:           messages,
		dispatcher:         dispatcher,
		views:              views,
		maxAttachmentBytes: maxAttachmentBytes,
		logger:             log.With(slog.String("handler", "message")),
	}
}

// Register mounts the message routes.
func (h *MessageHandler) Register(e *echo.Echo) {
	e.GET("/conversations/:id/messages", h.List)
	e.GET("/conversations/:id/live", h.Live)
	e.DELETE("/conversations/:id/live", h.Unwatch)
	e.POST("/conversations/:id/messages", h.Send)
	e.POST("/conversations/:id/read", h.MarkRead)
	e.PUT("/messages/:id", h.Edit)
	e.DELETE("/messages/:id", h.Delete)
}

type liveResponse struct {
	Reconciling bool              `json:"reconciling"`
	Messages    []message.Message `json:"messages"`
}

// Live returns the reconciled live view of a conversation: the stored log
// merged with optimistic sends still settling. First access starts the
// background refresh; it stops when the client calls Unwatch or after the
// manager's idle TTL, whichever comes first.
func (h *MessageHandler) Live(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Get(c.Request().Context(), session, c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	view := h.views.ViewFor(conv.ID)
	msgs := view.Messages()
	if msgs == nil {
		msgs = []message.Message{}
	}
	return c.JSON(http.StatusOK, liveResponse{
		Reconciling: view.State() == reconcile.Reconciling,
		Messages:    msgs,
	})
}

// Unwatch stops the background refresh of a conversation's live view, e.g.
// when the agent closes or switches the conversation.
func (h *MessageHandler) Unwatch(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Get(c.Request().Context(), session, c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	h.views.Release(conv.ID)
	return c.NoContent(http.StatusNoContent)
}

// List returns the conversation's full ordered log.
func (h *MessageHandler) List(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Get(c.Request().Context(), session, c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	messages, err := h.messages.ListByConversation(c.Request().Context(), conv.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if messages == nil {
		messages = []message.Message{}
	}
	return c.JSON(http.StatusOK, map[string][]message.Message{"messages": messages})
}

// Send accepts a multipart form with optional content, reply_to_id, and file
// fields, stores the message, and dispatches it to the channel. A failed
// delivery still returns the stored message so the agent sees the failed
// bubble.
func (h *MessageHandler) Send(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}

	in := dispatch.SendInput{
		Content:   c.FormValue("content"),
		ReplyToID: strings.TrimSpace(c.FormValue("reply_to_id")),
	}
	if fileHeader, fileErr := c.FormFile("file"); fileErr == nil {
		if fileHeader.Size > h.maxAttachmentBytes {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "attachment exceeds size limit")
		}
		src, err := fileHeader.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable attachment")
		}
		defer src.Close()
		data, err := io.ReadAll(io.LimitReader(src, h.maxAttachmentBytes+1))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable attachment")
		}
		if int64(len(data)) > h.maxAttachmentBytes {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "attachment exceeds size limit")
		}
		in.Attachment = &dispatch.Upload{
			FileName: fileHeader.Filename,
			Mime:     fileHeader.Header.Get("Content-Type"),
			Data:     data,
		}
	}

	sent, err := h.dispatcher.Send(c.Request().Context(), session, c.Param("id"), in)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, sent)
	case errors.Is(err, dispatch.ErrChannelUnavailable):
		// Stored but undelivered: surface the failed row, not an opaque error.
		return c.JSON(http.StatusBadGateway, sent)
	case errors.Is(err, dispatch.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrPayloadTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, message.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "reply target not found")
	default:
		return conversationError(err)
	}
}

// MarkRead flips the conversation's unread customer messages to read.
func (h *MessageHandler) MarkRead(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Get(c.Request().Context(), session, c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	if err := h.messages.MarkRead(c.Request().Context(), conv.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// Edit updates a message's content locally and, for delivered agent
// messages, on the channel.
func (h *MessageHandler) Edit(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	edited, err := h.dispatcher.Edit(c.Request().Context(), session, c.Param("id"), req.Content)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, edited)
	case errors.Is(err, dispatch.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, message.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	default:
		return conversationError(err)
	}
}

// Delete removes a message. ?scope=EVERYWHERE also deletes the channel copy
// when one exists; the default is LOCAL_ONLY.
func (h *MessageHandler) Delete(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	scope := message.DeleteLocalOnly
	if strings.EqualFold(c.QueryParam("scope"), string(message.DeleteEverywhere)) {
		scope = message.DeleteEverywhere
	}
	err = h.dispatcher.Delete(c.Request().Context(), session, c.Param("id"), scope)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, message.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	default:
		return conversationError(err)
	}
}
