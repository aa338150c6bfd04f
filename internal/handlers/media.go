package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nemesisdesk/nemesis/internal/auth"
)

// allowedMediaHost is the only upstream the proxy will fetch from. The url
// parameter is caller-supplied; without this check the endpoint is an open
// relay.
const allowedMediaHost = "api.telegram.org"

// MediaHandler proxies channel-hosted attachments to the agent's browser.
// Channel file URLs embed the tenant credential, so they are never handed to
// the client directly; the proxy fetches server-side and forces a download.
type MediaHandler struct {
	client *http.Client
	logger *slog.Logger
}

// NewMediaHandler creates a media proxy handler.
func NewMediaHandler(log *slog.Logger) *MediaHandler {
	return &MediaHandler{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: log.With(slog.String("handler", "media")),
	}
}

// Register mounts the media proxy route.
func (h *MediaHandler) Register(e *echo.Echo) {
	e.GET("/media", h.Proxy)
}

// Proxy streams ?url= to the client with an attachment disposition. ?name=
// overrides the download filename.
func (h *MediaHandler) Proxy(c echo.Context) error {
	if _, err := auth.SessionFromContext(c); err != nil {
		return err
	}

	raw := c.QueryParam("url")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url parameter is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "https" || parsed.Host != allowedMediaHost {
		return echo.NewHTTPError(http.StatusBadRequest, "url must point at the channel file host")
	}

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, parsed.String(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WarnContext(c.Request().Context(), "media fetch failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "channel file fetch failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("channel returned %d", resp.StatusCode))
	}

	name := strings.TrimSpace(c.QueryParam("name"))
	if name == "" {
		name = path.Base(parsed.Path)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Stream(http.StatusOK, contentType, resp.Body)
}
