package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/metrics"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
	"github.com/magabrotheeeer/lectio-billing/internal/services/reconcile"
)

// Handlers — обработчики сверки, между которыми распределяются события.
type Handlers interface {
	SubscriptionCreated(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.SubscriptionCheckout) error
	SubscriptionUpdated(ctx context.Context, evt *stripe.Event) error
	SubscriptionDeleted(ctx context.Context, evt *stripe.Event) error
	InvoicePaid(ctx context.Context, evt *stripe.Event) error
	InvoicePaymentFailed(ctx context.Context, evt *stripe.Event) error
	DonationCompleted(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.DonationCheckout) error
	OrderCompleted(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.OrderCheckout) error
}

// Dedup хранит отметки об уже обработанных доставках.
type Dedup interface {
	SeenEvent(ctx context.Context, eventID string) (bool, error)
	RememberEvent(ctx context.Context, eventID, eventType string, ttl time.Duration) error
}

// Result — исход обработки одного события.
type Result struct {
	Outcome   string
	Duplicate bool
}

// Dispatcher направляет проверенное событие по типу.
type Dispatcher struct {
	log      *slog.Logger
	handlers Handlers
	dedup    Dedup
	dedupTTL time.Duration
	metrics  *metrics.Webhook
}

// NewDispatcher создает Dispatcher. dedup и m могут быть nil.
func NewDispatcher(log *slog.Logger, handlers Handlers, dedup Dedup, dedupTTL time.Duration, m *metrics.Webhook) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: handlers,
		dedup:    dedup,
		dedupTTL: dedupTTL,
		metrics:  m,
	}
}

// Dispatch обрабатывает событие. Ошибка возвращается только при сбое обработчика,
// после которого провайдер должен повторить доставку.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *stripe.Event) (res Result, err error) {
	const op = "webhook.Dispatch"
	log := d.log.With(slog.String("op", op), sl.Event(evt.ID, string(evt.Type)))

	started := time.Now()
	defer func() {
		d.metrics.Observe(string(evt.Type), res.Outcome, time.Since(started))
	}()

	if d.seen(ctx, log, evt.ID) {
		log.Info("event already processed")
		return Result{Outcome: metrics.OutcomeDuplicate, Duplicate: true}, nil
	}

	handled, err := d.route(ctx, log, evt)
	switch {
	case !handled:
		log.Info("ignored webhook event")
		return Result{Outcome: metrics.OutcomeUnhandled}, nil
	case errors.Is(err, reconcile.ErrStaleEvent),
		errors.Is(err, models.ErrMissingMetadata),
		errors.Is(err, models.ErrUnknownCheckout):
		log.Warn("event acknowledged without changes", sl.Err(err))
		res = Result{Outcome: metrics.OutcomeIgnored}
	case err != nil:
		log.Error("event handler failed", sl.Err(err))
		return Result{Outcome: metrics.OutcomeFailed}, fmt.Errorf("%s: %w", op, err)
	default:
		log.Info("event processed")
		res = Result{Outcome: metrics.OutcomeProcessed}
	}

	d.remember(ctx, log, evt)
	return res, nil
}

// route вызывает обработчик для типа события. handled=false для типов без обработчика.
func (d *Dispatcher) route(ctx context.Context, log *slog.Logger, evt *stripe.Event) (handled bool, err error) {
	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return true, d.checkoutCompleted(ctx, log, evt)
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		return true, d.handlers.SubscriptionUpdated(ctx, evt)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return true, d.handlers.SubscriptionDeleted(ctx, evt)
	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentSucceeded:
		return true, d.handlers.InvoicePaid(ctx, evt)
	case stripe.EventTypeInvoicePaymentFailed:
		return true, d.handlers.InvoicePaymentFailed(ctx, evt)
	default:
		return false, nil
	}
}

// checkoutCompleted разбирает метаданные сессии и выбирает обработчик по их варианту.
func (d *Dispatcher) checkoutCompleted(ctx context.Context, log *slog.Logger, evt *stripe.Event) error {
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return fmt.Errorf("%w: checkout event has no data object", models.ErrMissingMetadata)
	}
	var session models.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: decode checkout session: %s", models.ErrMissingMetadata, err.Error())
	}

	meta, err := models.ParseCheckoutMetadata(session.Mode, session.Metadata)
	if err != nil {
		return err
	}
	log.Debug("checkout session routed",
		slog.String("session_id", session.ID),
		slog.String("kind", meta.CheckoutKind()))

	switch m := meta.(type) {
	case models.SubscriptionCheckout:
		return d.handlers.SubscriptionCreated(ctx, evt, &session, m)
	case models.DonationCheckout:
		return d.handlers.DonationCompleted(ctx, evt, &session, m)
	case models.OrderCheckout:
		return d.handlers.OrderCompleted(ctx, evt, &session, m)
	default:
		return fmt.Errorf("%w: %T", models.ErrUnknownCheckout, meta)
	}
}

// seen сообщает, отмечено ли событие как обработанное. Недоступность хранилища
// отметок не мешает обработке: обработчики идемпотентны.
func (d *Dispatcher) seen(ctx context.Context, log *slog.Logger, eventID string) bool {
	if d.dedup == nil {
		return false
	}
	ok, err := d.dedup.SeenEvent(ctx, eventID)
	if err != nil {
		log.Warn("dedup lookup failed", sl.Err(err))
		return false
	}
	return ok
}

func (d *Dispatcher) remember(ctx context.Context, log *slog.Logger, evt *stripe.Event) {
	if d.dedup == nil {
		return
	}
	if err := d.dedup.RememberEvent(ctx, evt.ID, string(evt.Type), d.dedupTTL); err != nil {
		log.Warn("failed to remember event", sl.Err(err))
	}
}
