package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
)

// ErrDrop помечает сообщение, которое не удастся обработать и при повторе.
// Такое сообщение подтверждается отрицательно без возврата в очередь.
var ErrDrop = errors.New("message dropped")

// Delivery — часть amqp.Delivery, нужная для подтверждения.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Settle подтверждает доставку по результату обработчика:
// nil → Ack, ErrDrop → Nack без повтора, прочие ошибки → Nack с повтором.
func Settle(log *slog.Logger, d Delivery, handlerErr error) {
	switch {
	case handlerErr == nil:
		if err := d.Ack(false); err != nil {
			log.Error("failed to ack message", sl.Err(err))
		}
	case errors.Is(handlerErr, ErrDrop):
		log.Warn("dropping message", sl.Err(handlerErr))
		if err := d.Nack(false, false); err != nil {
			log.Error("failed to nack message", sl.Err(err))
		}
	default:
		log.Error("message handling failed, requeueing", sl.Err(handlerErr))
		if err := d.Nack(false, true); err != nil {
			log.Error("failed to nack message", sl.Err(err))
		}
	}
}

// ConsumerMessage создает потребителя сообщений из очереди RabbitMQ.
// Одновременно обрабатывается не больше prefetch сообщений.
func ConsumerMessage(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queueName string, handler func(context.Context, []byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	log = log.With(slog.String("op", op), slog.String("queue", queueName))

	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sem := make(chan struct{}, prefetch)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					log.Info("delivery channel closed")
					return
				}
				sem <- struct{}{}
				go func(d amqp.Delivery) {
					defer func() { <-sem }()
					Settle(log, d, handler(ctx, d.Body))
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
