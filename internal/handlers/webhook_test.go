package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/nemesisdesk/nemesis/internal/tenant"
)

type stubResolver struct {
	tn  tenant.Tenant
	err error
}

func (s stubResolver) Resolve(context.Context, string) (tenant.Tenant, error) {
	return s.tn, s.err
}

type stubPipeline struct {
	handled int
	err     error
}

func (s *stubPipeline) HandleUpdate(context.Context, tenant.Tenant, tgbotapi.Update) error {
	s.handled++
	return s.err
}

func postWebhook(t *testing.T, handler *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook?tenant=11111111-2222-3333-4444-555555555555", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := handler.Receive(e.NewContext(req, rec)); err != nil {
		t.Fatalf("webhook must never error: %v", err)
	}
	return rec
}

func TestWebhook_AcknowledgesUnknownTenant(t *testing.T) {
	t.Parallel()

	pipeline := &stubPipeline{}
	handler := NewWebhookHandler(nil, stubResolver{err: tenant.ErrUnknownTenant}, pipeline)

	rec := postWebhook(t, handler, `{"update_id":1}`)
	if rec.Code < 200 || rec.Code > 299 {
		t.Fatalf("unknown tenant must still get 2xx, got %d", rec.Code)
	}
	if pipeline.handled != 0 {
		t.Fatal("pipeline must not run for unknown tenants")
	}
}

func TestWebhook_AcknowledgesMisconfiguredTenant(t *testing.T) {
	t.Parallel()

	pipeline := &stubPipeline{}
	handler := NewWebhookHandler(nil, stubResolver{err: tenant.ErrMisconfigured}, pipeline)

	rec := postWebhook(t, handler, `{"update_id":1}`)
	if rec.Code < 200 || rec.Code > 299 {
		t.Fatalf("misconfigured tenant must still get 2xx, got %d", rec.Code)
	}
}

func TestWebhook_AcknowledgesPipelineFailure(t *testing.T) {
	t.Parallel()

	pipeline := &stubPipeline{err: errors.New("db down")}
	handler := NewWebhookHandler(nil, stubResolver{tn: tenant.Tenant{ID: "t1", TelegramToken: "tok", IsActive: true}}, pipeline)

	rec := postWebhook(t, handler, `{"update_id":1,"message":{"message_id":5,"text":"oi","chat":{"id":9}}}`)
	if rec.Code < 200 || rec.Code > 299 {
		t.Fatalf("pipeline failure must still get 2xx, got %d", rec.Code)
	}
	if pipeline.handled != 1 {
		t.Fatalf("expected pipeline to run once, ran %d times", pipeline.handled)
	}
}

func TestWebhook_AcknowledgesGarbagePayload(t *testing.T) {
	t.Parallel()

	pipeline := &stubPipeline{}
	handler := NewWebhookHandler(nil, stubResolver{tn: tenant.Tenant{ID: "t1", TelegramToken: "tok", IsActive: true}}, pipeline)

	rec := postWebhook(t, handler, `{not json`)
	if rec.Code < 200 || rec.Code > 299 {
		t.Fatalf("garbage payload must still get 2xx, got %d", rec.Code)
	}
	if pipeline.handled != 0 {
		t.Fatal("pipeline must not run for unparseable payloads")
	}
}
