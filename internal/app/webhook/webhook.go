package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/lectio-billing/internal/cache"
	"github.com/magabrotheeeer/lectio-billing/internal/config"
	"github.com/magabrotheeeer/lectio-billing/internal/http/handlers/health"
	"github.com/magabrotheeeer/lectio-billing/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/jwt"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/metrics"
	"github.com/magabrotheeeer/lectio-billing/internal/migrations"
	"github.com/magabrotheeeer/lectio-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/lectio-billing/internal/services/inventory"
	"github.com/magabrotheeeer/lectio-billing/internal/services/notification"
	"github.com/magabrotheeeer/lectio-billing/internal/services/reconcile"
	webhooksvc "github.com/magabrotheeeer/lectio-billing/internal/services/webhook"
	"github.com/magabrotheeeer/lectio-billing/internal/storage"
)

// App — HTTP-сервис приёма вебхуков.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *storage.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New поднимает зависимости: базу с миграциями, Redis, RabbitMQ, клиента провайдера,
// и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.webhook.New"

	if err := cfg.ValidateWebhook(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := storage.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, err
	}

	app := &App{
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}

	// Отметки о доставках только экономят повторную работу, поэтому без Redis сервис работает.
	var dedup webhooksvc.Dedup
	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Warn("redis unavailable, delivery dedup disabled", sl.Err(err))
	} else {
		app.cache = cacheRedis
		dedup = cacheRedis
	}

	emitter := notification.New(logger, rabbitmq.NewPublisher(ch, rabbitmq.NotificationsExchange))
	reconciler := reconcile.New(
		logger,
		db,
		paymentprovider.NewClient(cfg.Stripe.SecretKey),
		emitter,
		inventory.New(logger, db),
		jwt.NewJWTMaker(cfg.OrderLink.Secret, cfg.OrderLink.TTL),
		reconcile.Options{
			PublicBaseURL:     cfg.PublicBaseURL,
			EnforceEventOrder: cfg.EnforceEventOrder,
		},
	)
	dispatcher := webhooksvc.NewDispatcher(logger, reconciler, dedup, cfg.DedupTTL, metrics.NewWebhook(nil))
	hook := paymentwebhook.New(logger, webhooksvc.NewVerifier(cfg.Stripe.WebhookSecret), dispatcher, cfg.MaxBodyBytes)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Routes{
		Webhook:   hook,
		Health:    health.New(logger, db),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx и затем корректно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}
	a.close()
	return err
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
