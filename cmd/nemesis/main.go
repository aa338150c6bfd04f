package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/nemesisdesk/nemesis/db"
	"github.com/nemesisdesk/nemesis/internal/config"
	"github.com/nemesisdesk/nemesis/internal/conversation"
	dbpkg "github.com/nemesisdesk/nemesis/internal/db"
	"github.com/nemesisdesk/nemesis/internal/dispatch"
	"github.com/nemesisdesk/nemesis/internal/handlers"
	"github.com/nemesisdesk/nemesis/internal/ingest"
	"github.com/nemesisdesk/nemesis/internal/logger"
	"github.com/nemesisdesk/nemesis/internal/message"
	"github.com/nemesisdesk/nemesis/internal/reconcile"
	"github.com/nemesisdesk/nemesis/internal/server"
	"github.com/nemesisdesk/nemesis/internal/telegram"
	"github.com/nemesisdesk/nemesis/internal/tenant"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,

			provideTelegramFactory,
			provideTenantService,
			conversation.NewStore,
			message.NewStore,
			ingest.NewService,
			provideViewManager,
			provideDispatcher,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideConversationHandler),
			provideServerHandler(provideMessageHandler),
			provideServerHandler(handlers.NewMediaHandler),
			provideServerHandler(provideTenantHandler),

			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := dbpkg.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideTelegramFactory(log *slog.Logger, cfg config.Config) *telegram.Factory {
	return telegram.NewFactory(log, cfg.Telegram.SendsPerSecond)
}

func provideTenantService(log *slog.Logger, pool *pgxpool.Pool, factory *telegram.Factory) *tenant.Service {
	return tenant.NewService(log, pool, factory)
}

func provideViewManager(lc fx.Lifecycle, log *slog.Logger, messages *message.Store) *reconcile.Manager {
	manager := reconcile.NewManager(log, func(ctx context.Context, conversationID string) ([]message.Message, error) {
		return messages.ListByConversation(ctx, conversationID)
	}, 3*time.Second, 2*time.Minute)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			manager.Close()
			return nil
		},
	})
	return manager
}

func provideDispatcher(log *slog.Logger, conversations *conversation.Store, messages *message.Store, tenants *tenant.Service, factory *telegram.Factory, views *reconcile.Manager, cfg config.Config) *dispatch.Service {
	svc := dispatch.NewService(log, conversations, messages, tenants, dispatch.NewTelegramResolver(factory), cfg.Telegram.MaxAttachmentBytes)
	svc.SetObserver(views)
	return svc
}

func provideWebhookHandler(log *slog.Logger, tenants *tenant.Service, pipeline *ingest.Service) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, tenants, pipeline)
}

func provideConversationHandler(log *slog.Logger, conversations *conversation.Store, dispatcher *dispatch.Service) *handlers.ConversationHandler {
	return handlers.NewConversationHandler(log, conversations, dispatcher)
}

func provideMessageHandler(log *slog.Logger, conversations *conversation.Store, messages *message.Store, dispatcher *dispatch.Service, views *reconcile.Manager, cfg config.Config) *handlers.MessageHandler {
	return handlers.NewMessageHandler(log, conversations, messages, dispatcher, views, cfg.Telegram.MaxAttachmentBytes)
}

func provideTenantHandler(log *slog.Logger, tenants *tenant.Service, cfg config.Config) (*handlers.TenantHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt expiry: %w", err)
	}
	return handlers.NewTenantHandler(log, tenants, cfg.Server.PublicBaseURL, cfg.Auth.JWTSecret, expiresIn), nil
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func runMigrations(logger *slog.Logger, cfg config.Config) error {
	return dbpkg.RunMigrate(logger, cfg.Postgres, db.MigrationsFS, "migrations")
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
