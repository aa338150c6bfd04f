package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nemesisdesk/nemesis/internal/access"
)

const testSecret = "test-secret"

func issueToken(t *testing.T, session access.Session) string {
	t.Helper()
	token, _, err := GenerateToken("agent-1", session, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	return token
}

func sessionThroughMiddleware(t *testing.T, token string) (access.Session, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()

	var (
		session access.Session
		sessErr error
	)
	handler := JWTMiddleware(testSecret, nil)(func(c echo.Context) error {
		session, sessErr = SessionFromContext(c)
		return nil
	})
	if err := handler(e.NewContext(req, rec)); err != nil {
		return access.Session{}, err
	}
	return session, sessErr
}

func TestTokenRoundTripCarriesSession(t *testing.T) {
	t.Parallel()

	want := access.Session{TenantID: "tenant-1", Role: access.RoleAgent, Department: "FINANCEIRO"}
	session, err := sessionThroughMiddleware(t, issueToken(t, want))
	if err != nil {
		t.Fatalf("session extraction failed: %v", err)
	}
	if session != want {
		t.Fatalf("expected %+v, got %+v", want, session)
	}
}

func TestAdminRoleSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	session, err := sessionThroughMiddleware(t, issueToken(t, access.Session{TenantID: "tenant-1", Role: access.RoleAdmin}))
	if err != nil {
		t.Fatalf("session extraction failed: %v", err)
	}
	if !session.IsAdmin() {
		t.Fatal("expected admin session")
	}
}

func TestMiddlewareRejectsForgedToken(t *testing.T) {
	t.Parallel()

	forged, _, err := GenerateToken("agent-1", access.Session{TenantID: "tenant-1"}, "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if _, err := sessionThroughMiddleware(t, forged); err == nil {
		t.Fatal("expected middleware to reject a token signed with another secret")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()

	if _, _, err := GenerateToken("", access.Session{TenantID: "t"}, testSecret, time.Hour); err == nil {
		t.Fatal("expected error for missing agent id")
	}
	if _, _, err := GenerateToken("a", access.Session{}, testSecret, time.Hour); err == nil {
		t.Fatal("expected error for missing tenant id")
	}
	if _, _, err := GenerateToken("a", access.Session{TenantID: "t"}, testSecret, 0); err == nil {
		t.Fatal("expected error for non-positive expiry")
	}
}
