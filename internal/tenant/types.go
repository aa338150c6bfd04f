package tenant

import (
	"errors"
	"time"
)

// Tenant is an isolated customer organization owning conversations and a
// channel credential.
type Tenant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TelegramToken string    `json:"-"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	// ErrUnknownTenant means no active tenant matches the discriminator.
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrMisconfigured means the tenant exists but has no channel credential.
	ErrMisconfigured = errors.New("tenant has no channel credential")
)
