package tenant_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nemesisdesk/nemesis/internal/tenant"
)

func setupIntegrationTest(t *testing.T) (*tenant.Service, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return tenant.NewService(logger, pool, nil), pool
}

func TestIntegrationResolve(t *testing.T) {
	svc, pool := setupIntegrationTest(t)
	ctx := context.Background()

	name := fmt.Sprintf("tenant_%d", time.Now().UnixNano())
	created, err := svc.Create(ctx, name)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Fresh tenant has no credential yet.
	if _, err := svc.Resolve(ctx, created.ID); !errors.Is(err, tenant.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured for credential-less tenant, got %v", err)
	}

	if _, err := pool.Exec(ctx, `UPDATE tenants SET telegram_token = 'tok' WHERE id = $1`, created.ID); err != nil {
		t.Fatalf("set token failed: %v", err)
	}
	resolved, err := svc.Resolve(ctx, created.ID)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.ID != created.ID || resolved.TelegramToken != "tok" {
		t.Fatalf("unexpected tenant %+v", resolved)
	}

	if err := svc.Deactivate(ctx, created.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := svc.Resolve(ctx, created.ID); !errors.Is(err, tenant.ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant for inactive tenant, got %v", err)
	}
}

func TestIntegrationResolveUnknownInputs(t *testing.T) {
	svc, _ := setupIntegrationTest(t)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "not-a-uuid"); !errors.Is(err, tenant.ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant for malformed id, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "11111111-2222-3333-4444-555555555555"); !errors.Is(err, tenant.ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant for absent id, got %v", err)
	}
}
