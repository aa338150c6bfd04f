package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/nemesisdesk/nemesis/internal/tenant"
)

// TenantResolver maps a webhook discriminator to a tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (tenant.Tenant, error)
}

// UpdatePipeline processes a resolved channel update.
type UpdatePipeline interface {
	HandleUpdate(ctx context.Context, tn tenant.Tenant, update tgbotapi.Update) error
}

// WebhookHandler receives channel push deliveries. It always acknowledges
// with 2xx: a non-2xx answer makes the channel re-deliver the same update
// forever, so every failure is logged and swallowed here.
type WebhookHandler struct {
	tenants TenantResolver
	ingest  UpdatePipeline
	logger  *slog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(log *slog.Logger, tenants TenantResolver, ingest UpdatePipeline) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		tenants: tenants,
		ingest:  ingest,
		logger:  log.With(slog.String("handler", "webhook")),
	}
}

// Register mounts the webhook routes. Unauthenticated; tenancy comes from the
// URL discriminator, never from the payload.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
	e.GET("/webhook", h.Probe)
}

// Probe answers channel reachability checks.
func (h *WebhookHandler) Probe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Receive processes one channel update for the tenant named in the query.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := c.QueryParam("tenant")

	tn, err := h.tenants.Resolve(ctx, tenantID)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrUnknownTenant):
			h.logger.WarnContext(ctx, "webhook for unknown tenant", slog.String("tenant", tenantID))
		case errors.Is(err, tenant.ErrMisconfigured):
			h.logger.ErrorContext(ctx, "webhook for misconfigured tenant", slog.String("tenant", tenantID))
		default:
			h.logger.ErrorContext(ctx, "tenant resolution failed", slog.String("tenant", tenantID), slog.Any("error", err))
		}
		return c.NoContent(http.StatusOK)
	}

	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		h.logger.WarnContext(ctx, "unparseable webhook payload", slog.String("tenant", tn.ID), slog.Any("error", err))
		return c.NoContent(http.StatusOK)
	}

	if err := h.ingest.HandleUpdate(ctx, tn, update); err != nil {
		h.logger.ErrorContext(ctx, "ingest failed", slog.String("tenant", tn.ID), slog.Any("error", err))
	}
	return c.NoContent(http.StatusOK)
}
