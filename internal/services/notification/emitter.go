// Package notification публикует шаблонные уведомления в очередь писем.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

var (
	// ErrNoRecipient возвращается, если у уведомления нет адреса получателя.
	ErrNoRecipient = errors.New("notification recipient is empty")
	// ErrUnsupportedValue возвращается для переменной шаблона недопустимого типа.
	ErrUnsupportedValue = errors.New("unsupported template variable type")
)

// Publisher публикует сообщение с ключом маршрутизации.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Emitter ставит уведомления в очередь на отправку.
type Emitter struct {
	log       *slog.Logger
	publisher Publisher
}

// New создаёт Emitter.
func New(log *slog.Logger, publisher Publisher) *Emitter {
	return &Emitter{log: log, publisher: publisher}
}

// Send публикует уведомление templateKey для адресата email.
func (e *Emitter) Send(ctx context.Context, templateKey, email, name string, vars map[string]any) error {
	const op = "notification.Send"

	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%s: %s: %w", op, templateKey, ErrNoRecipient)
	}
	if err := validateVariables(vars); err != nil {
		return fmt.Errorf("%s: %s: %w", op, templateKey, err)
	}

	msg := models.Notification{
		Template:  templateKey,
		To:        email,
		Name:      name,
		Variables: vars,
	}
	if err := e.publisher.Publish(ctx, rabbitmq.EmailRoutingKey, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.log.Info("notification queued",
		slog.String("op", op),
		slog.String("template", templateKey))
	return nil
}

// validateVariables пропускает только строки, числа и булевы значения.
func validateVariables(vars map[string]any) error {
	for k, v := range vars {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return fmt.Errorf("%w: %s is %T", ErrUnsupportedValue, k, v)
		}
	}
	return nil
}
