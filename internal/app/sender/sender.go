// Package sender собирает сервис отправки писем из очереди уведомлений.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/lectio-billing/internal/config"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/lectio-billing/internal/services/sender"
)

// App — потребитель очереди писем.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New подключается к брокеру и готовит шаблоны и SMTP-транспорт.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.sender.New"

	if err := cfg.ValidateSender(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	templates, err := senderservice.LoadTemplates()
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderservice.New(logger, transport, templates),
		logger:        logger,
	}, nil
}

// Run потребляет очередь писем до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, rabbitmq.EmailQueue, a.senderService.Handle)
	if err != nil {
		a.logger.Error("failed to start email consumer", sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
