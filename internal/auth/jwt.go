// Package auth provides JWT middleware and agent session claim handling.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nemesisdesk/nemesis/internal/access"
)

const (
	claimSubject    = "sub"
	claimTenantID   = "tenant_id"
	claimRole       = "role"
	claimDepartment = "department"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// SessionFromContext extracts the agent session (tenant, role, department)
// from JWT claims. The session is supplied per request and never persisted.
func SessionFromContext(c echo.Context) (access.Session, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return access.Session{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return access.Session{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	tenantID := claimString(claims, claimTenantID)
	if tenantID == "" {
		return access.Session{}, echo.NewHTTPError(http.StatusUnauthorized, "tenant missing from token")
	}
	role := access.RoleAgent
	if strings.EqualFold(claimString(claims, claimRole), string(access.RoleAdmin)) {
		role = access.RoleAdmin
	}
	return access.Session{
		TenantID:   tenantID,
		Role:       role,
		Department: access.CanonicalDepartment(claimString(claims, claimDepartment)),
	}, nil
}

// GenerateToken creates a signed JWT carrying the agent session claims.
func GenerateToken(agentID string, session access.Session, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", time.Time{}, fmt.Errorf("agent id is required")
	}
	if strings.TrimSpace(session.TenantID) == "" {
		return "", time.Time{}, fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject:    agentID,
		claimTenantID:   session.TenantID,
		claimRole:       string(session.Role),
		claimDepartment: session.Department,
		"iat":           now.Unix(),
		"exp":           expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
