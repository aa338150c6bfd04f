package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/nemesisdesk/nemesis/internal/conversation"
)

func TestParseListFilter(t *testing.T) {
	filter, err := parseListFilter("", "")
	assert.NoError(t, err)
	assert.True(t, filter.Start.IsZero())
	assert.True(t, filter.End.IsZero())

	filter, err = parseListFilter("2026-03-01", "2026-03-15")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), filter.Start)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), filter.End)

	filter, err = parseListFilter("2026-03-01T10:30:00Z", "")
	assert.NoError(t, err)
	assert.Equal(t, 10, filter.Start.Hour())

	_, err = parseListFilter("yesterday", "")
	assert.Error(t, err)
}

func TestConversationErrorMapping(t *testing.T) {
	httpErr, ok := conversationError(conversation.ErrNotFound).(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)

	httpErr, ok = conversationError(conversation.ErrForbidden).(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)

	httpErr, ok = conversationError(assert.AnError).(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
}
