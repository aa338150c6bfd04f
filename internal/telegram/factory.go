package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Factory hands out one Client per tenant credential. Clients are cached:
// constructing one validates the token against the channel, which is too
// expensive to repeat per webhook event.
type Factory struct {
	mu             sync.Mutex
	clients        map[string]*Client
	sendsPerSecond int
	logger         *slog.Logger
}

// NewFactory creates a client factory.
func NewFactory(log *slog.Logger, sendsPerSecond int) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{
		clients:        map[string]*Client{},
		sendsPerSecond: sendsPerSecond,
		logger:         log,
	}
}

// ClientFor returns the cached client for a credential, creating it on first
// use.
func (f *Factory) ClientFor(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("channel token is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[token]; ok {
		return client, nil
	}
	client, err := NewClient(f.logger, token, f.sendsPerSecond)
	if err != nil {
		return nil, err
	}
	f.clients[token] = client
	return client, nil
}

// Forget drops a cached client, e.g. after a credential rotation.
func (f *Factory) Forget(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, token)
}

// RegisterWebhook points the channel's push delivery for the given credential
// at url. Used by the tenant connect operation.
func (f *Factory) RegisterWebhook(ctx context.Context, token, url string) error {
	client, err := f.ClientFor(token)
	if err != nil {
		return err
	}
	webhook, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if err := client.wait(ctx); err != nil {
		return err
	}
	if _, err := client.bot.Request(webhook); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
