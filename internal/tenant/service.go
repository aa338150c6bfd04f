// Package tenant resolves inbound webhook calls to tenants and manages
// channel credentials.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/nemesisdesk/nemesis/internal/db"
)

// WebhookRegistrar registers a webhook URL with the external channel for a
// given credential.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, token, url string) error
}

// Service looks up tenants and persists channel credentials.
type Service struct {
	pool      *pgxpool.Pool
	registrar WebhookRegistrar
	logger    *slog.Logger
}

// NewService creates a tenant service.
func NewService(log *slog.Logger, pool *pgxpool.Pool, registrar WebhookRegistrar) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:      pool,
		registrar: registrar,
		logger:    log.With(slog.String("service", "tenant")),
	}
}

// Resolve maps a webhook discriminator to exactly one active tenant with a
// usable channel credential. Read-only.
func (s *Service) Resolve(ctx context.Context, tenantID string) (Tenant, error) {
	pgID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return Tenant{}, ErrUnknownTenant
	}

	const query = `
		SELECT id, name, telegram_token, is_active, created_at
		FROM tenants
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, pgID)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrUnknownTenant
		}
		return Tenant{}, fmt.Errorf("resolve tenant: %w", err)
	}
	if !t.IsActive {
		return Tenant{}, ErrUnknownTenant
	}
	if strings.TrimSpace(t.TelegramToken) == "" {
		return Tenant{}, ErrMisconfigured
	}
	return t, nil
}

// Get returns a tenant regardless of credential state, for administrative use.
func (s *Service) Get(ctx context.Context, tenantID string) (Tenant, error) {
	pgID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return Tenant{}, ErrUnknownTenant
	}
	const query = `
		SELECT id, name, telegram_token, is_active, created_at
		FROM tenants
		WHERE id = $1
	`
	t, err := scanTenant(s.pool.QueryRow(ctx, query, pgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrUnknownTenant
		}
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// Create registers a new tenant without a channel credential.
func (s *Service) Create(ctx context.Context, name string) (Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, fmt.Errorf("tenant name is required")
	}
	const query = `
		INSERT INTO tenants (name)
		VALUES ($1)
		RETURNING id, name, telegram_token, is_active, created_at
	`
	t, err := scanTenant(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if dbpkg.IsUniqueViolation(err) {
			return Tenant{}, fmt.Errorf("tenant name already taken: %s", name)
		}
		return Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

// Connect registers the tenant-scoped webhook URL with the external channel
// and persists the credential. Administrative action, not on the hot path.
func (s *Service) Connect(ctx context.Context, tenantID, token, publicBaseURL string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("channel token is required")
	}
	if s.registrar == nil {
		return fmt.Errorf("webhook registrar not configured")
	}

	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	webhookURL := fmt.Sprintf("%s/webhook?tenant=%s", strings.TrimRight(publicBaseURL, "/"), t.ID)
	if err := s.registrar.RegisterWebhook(ctx, token, webhookURL); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}

	pgID, err := dbpkg.ParseUUID(t.ID)
	if err != nil {
		return ErrUnknownTenant
	}
	if _, err := s.pool.Exec(ctx, `UPDATE tenants SET telegram_token = $2 WHERE id = $1`, pgID, token); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.logger.Info("tenant connected", slog.String("tenant_id", t.ID))
	return nil
}

// Deactivate soft-deletes a tenant. Conversations are kept; the webhook stops
// resolving.
func (s *Service) Deactivate(ctx context.Context, tenantID string) error {
	pgID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return ErrUnknownTenant
	}
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET is_active = FALSE WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("deactivate tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownTenant
	}
	return nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var (
		id        pgtype.UUID
		token     pgtype.Text
		createdAt pgtype.Timestamptz
		t         Tenant
	)
	if err := row.Scan(&id, &t.Name, &token, &t.IsActive, &createdAt); err != nil {
		return Tenant{}, err
	}
	t.ID = id.String()
	t.TelegramToken = dbpkg.TextToString(token)
	t.CreatedAt = dbpkg.TimeFromPg(createdAt)
	return t, nil
}
