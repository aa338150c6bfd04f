package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nemesisdesk/nemesis/internal/auth"
	"github.com/nemesisdesk/nemesis/internal/conversation"
	"github.com/nemesisdesk/nemesis/internal/dispatch"
)

// ConversationHandler serves the agent queue and per-conversation actions.
type ConversationHandler struct {
	conversations *conversation.Store
	dispatcher    *dispatch.Service
	logger        *slog.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(log *slog.Logger, conversations *conversation.Store, dispatcher *dispatch.Service) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		dispatcher:    dispatcher,
		logger:        log.With(slog.String("handler", "conversation")),
	}
}

// Register mounts the conversation routes.
func (h *ConversationHandler) Register(e *echo.Echo) {
	e.GET("/conversations", h.List)
	e.POST("/conversations", h.Create)
	e.GET("/conversations/:id", h.Get)
	e.PUT("/conversations/:id/department", h.SetDepartment)
	e.PUT("/conversations/:id/urgency", h.SetUrgency)
	e.DELETE("/conversations/:id", h.Delete)
}

// List returns the session's visible conversations, optionally bounded by
// ?start and ?end (RFC 3339 dates).
func (h *ConversationHandler) List(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	filter, err := parseListFilter(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summaries, err := h.conversations.List(c.Request().Context(), session, filter)
	if err != nil {
		return conversationError(err)
	}
	if summaries == nil {
		summaries = []conversation.Summary{}
	}
	return c.JSON(http.StatusOK, map[string][]conversation.Summary{"conversations": summaries})
}

type createConversationRequest struct {
	ExternalPartyID string `json:"external_party_id"`
	DisplayName     string `json:"display_name"`
	Department      string `json:"department"`
}

// Create opens (or resolves) a conversation agent-side, before the customer
// has ever written in.
func (h *ConversationHandler) Create(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ExternalPartyID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external_party_id is required")
	}
	department := req.Department
	if department == "" && !session.IsAdmin() {
		department = session.Department
	}
	conv, err := h.conversations.Upsert(c.Request().Context(), conversation.UpsertInput{
		TenantID:        session.TenantID,
		ExternalPartyID: req.ExternalPartyID,
		DisplayName:     req.DisplayName,
		Department:      department,
	})
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// Get returns one conversation within the session's scope.
func (h *ConversationHandler) Get(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Get(c.Request().Context(), session, c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

type departmentRequest struct {
	Department string `json:"department"`
}

// SetDepartment moves the conversation to another department queue and
// notifies the customer.
func (h *ConversationHandler) SetDepartment(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	var req departmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	conv, err := h.conversations.SetDepartment(c.Request().Context(), session, c.Param("id"), req.Department)
	if err != nil {
		return conversationError(err)
	}
	h.dispatcher.NotifyDepartmentChange(c.Request().Context(), session, conv, conv.Department)
	return c.JSON(http.StatusOK, conv)
}

type urgencyRequest struct {
	Urgency string `json:"urgency"`
}

// SetUrgency changes the conversation's queue priority.
func (h *ConversationHandler) SetUrgency(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	var req urgencyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	urgency, err := conversation.ParseUrgency(req.Urgency)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conv, err := h.conversations.SetUrgency(c.Request().Context(), session, c.Param("id"), urgency)
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

// Delete removes the conversation and its messages.
func (h *ConversationHandler) Delete(c echo.Context) error {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return err
	}
	if err := h.conversations.Delete(c.Request().Context(), session, c.Param("id")); err != nil {
		return conversationError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseListFilter(start, end string) (conversation.ListFilter, error) {
	var filter conversation.ListFilter
	if start != "" {
		parsed, err := parseDate(start)
		if err != nil {
			return filter, err
		}
		filter.Start = parsed
	}
	if end != "" {
		parsed, err := parseDate(end)
		if err != nil {
			return filter, err
		}
		filter.End = parsed
	}
	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, errors.New("dates must be RFC 3339 or YYYY-MM-DD")
}

// conversationError maps store errors to HTTP status codes.
func conversationError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, conversation.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "conversation outside access scope")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
