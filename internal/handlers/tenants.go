package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nemesisdesk/nemesis/internal/access"
	"github.com/nemesisdesk/nemesis/internal/auth"
	"github.com/nemesisdesk/nemesis/internal/tenant"
)

// TenantHandler serves tenant administration: creation, channel connection,
// deactivation, and agent token minting. Every route requires an admin
// session scoped to the tenant being changed.
type TenantHandler struct {
	tenants       *tenant.Service
	publicBaseURL string
	jwtSecret     string
	jwtExpiresIn  time.Duration
	logger        *slog.Logger
}

// NewTenantHandler creates a tenant administration handler.
func NewTenantHandler(log *slog.Logger, tenants *tenant.Service, publicBaseURL, jwtSecret string, jwtExpiresIn time.Duration) *TenantHandler {
	return &TenantHandler{
		tenants:       tenants,
		publicBaseURL: publicBaseURL,
		jwtSecret:     jwtSecret,
		jwtExpiresIn:  jwtExpiresIn,
		logger:        log.With(slog.String("handler", "tenant")),
	}
}

// Register mounts the tenant administration routes.
func (h *TenantHandler) Register(e *echo.Echo) {
	e.POST("/tenants", h.Create)
	e.GET("/tenants/:id", h.Get)
	e.POST("/tenants/:id/connect", h.Connect)
	e.POST("/tenants/:id/tokens", h.MintToken)
	e.DELETE("/tenants/:id", h.Deactivate)
}

func (h *TenantHandler) adminSession(c echo.Context) (access.Session, error) {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return access.Session{}, err
	}
	if !session.IsAdmin() {
		return access.Session{}, echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}
	return session, nil
}

type createTenantRequest struct {
	Name string `json:"name"`
}

// Create registers a new tenant. The tenant starts disconnected; messages
// only flow after Connect.
func (h *TenantHandler) Create(c echo.Context) error {
	if _, err := h.adminSession(c); err != nil {
		return err
	}
	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tn, err := h.tenants.Create(c.Request().Context(), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, tn)
}

// Get returns one tenant. Admins can only read their own tenant.
func (h *TenantHandler) Get(c echo.Context) error {
	session, err := h.adminSession(c)
	if err != nil {
		return err
	}
	if session.TenantID != c.Param("id") {
		return echo.NewHTTPError(http.StatusForbidden, "tenant mismatch")
	}
	tn, err := h.tenants.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return tenantError(err)
	}
	return c.JSON(http.StatusOK, tn)
}

type connectTenantRequest struct {
	Token string `json:"token"`
}

// Connect registers the tenant's webhook with the channel and stores the
// credential.
func (h *TenantHandler) Connect(c echo.Context) error {
	session, err := h.adminSession(c)
	if err != nil {
		return err
	}
	if session.TenantID != c.Param("id") {
		return echo.NewHTTPError(http.StatusForbidden, "tenant mismatch")
	}
	var req connectTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.tenants.Connect(c.Request().Context(), c.Param("id"), req.Token, h.publicBaseURL); err != nil {
		if errors.Is(err, tenant.ErrUnknownTenant) {
			return tenantError(err)
		}
		// Webhook registration reaching the channel and failing is a
		// gateway problem, not a caller problem.
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type mintTokenRequest struct {
	AgentID    string `json:"agent_id"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

type mintTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MintToken issues an agent JWT for this tenant.
func (h *TenantHandler) MintToken(c echo.Context) error {
	session, err := h.adminSession(c)
	if err != nil {
		return err
	}
	if session.TenantID != c.Param("id") {
		return echo.NewHTTPError(http.StatusForbidden, "tenant mismatch")
	}
	var req mintTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	role := access.RoleAgent
	if access.Role(req.Role) == access.RoleAdmin {
		role = access.RoleAdmin
	}
	token, expiresAt, err := auth.GenerateToken(req.AgentID, access.Session{
		TenantID:   session.TenantID,
		Role:       role,
		Department: req.Department,
	}, h.jwtSecret, h.jwtExpiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, mintTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// Deactivate soft-deletes a tenant; its webhook stops resolving.
func (h *TenantHandler) Deactivate(c echo.Context) error {
	session, err := h.adminSession(c)
	if err != nil {
		return err
	}
	if session.TenantID != c.Param("id") {
		return echo.NewHTTPError(http.StatusForbidden, "tenant mismatch")
	}
	if err := h.tenants.Deactivate(c.Request().Context(), c.Param("id")); err != nil {
		return tenantError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func tenantError(err error) error {
	switch {
	case errors.Is(err, tenant.ErrUnknownTenant):
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	case errors.Is(err, tenant.ErrMisconfigured):
		return echo.NewHTTPError(http.StatusConflict, "tenant has no channel credential")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
