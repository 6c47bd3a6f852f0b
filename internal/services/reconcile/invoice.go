package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/money"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

const (
	billingReasonSubscriptionCreate = "subscription_create"
	genericFailureReason            = "Your payment method was declined."
)

// InvoicePaid обрабатывает продление: повторно запрашивает подписку у провайдера,
// обновляет период и отправляет письмо о продлении.
func (s *Service) InvoicePaid(ctx context.Context, evt *stripe.Event) error {
	const op = "reconcile.InvoicePaid"
	log := s.logger(op, evt)

	var inv models.Invoice
	if err := decode(evt, &inv); err != nil {
		log.Warn("invalid invoice payload", sl.Err(err))
		return nil
	}
	subID := inv.SubscriptionID()
	if subID == "" {
		log.Debug("invoice is not attached to a subscription, skipping", slog.String("invoice_id", inv.ID))
		return nil
	}
	log = log.With(slog.String("subscription_id", subID), slog.String("invoice_id", inv.ID))

	ps, err := s.provider.RetrieveSubscription(ctx, subID)
	if err != nil {
		return s.retrieveFailed(log, op, err)
	}

	updated, err := s.applyState(ctx, log, op, func(ctx context.Context) (bool, error) {
		return s.repo.UpdateSubscriptionState(ctx, ps.State(eventTime(evt)), s.opts.EnforceEventOrder)
	})
	if !notifyAfter(updated, err) {
		return err
	}

	// Первый счёт подписки уже сопровождается письмом об оформлении.
	if inv.BillingReason == billingReasonSubscriptionCreate {
		return nil
	}

	bestEffort(ctx, log, models.TemplateSubscriptionRenewed, func(ctx context.Context) error {
		tier := ""
		if sub, err := s.repo.GetSubscription(ctx, subID); err == nil {
			tier = sub.Tier
		}
		return s.notifier.Send(ctx, models.TemplateSubscriptionRenewed, inv.CustomerEmail, inv.CustomerName, map[string]any{
			"tier":              tier,
			"amount":            money.Format(money.FromMinor(inv.AmountPaid), inv.Currency),
			"next_billing_date": money.FormatDate(ps.CurrentPeriodEnd),
			"receipt_url":       inv.ReceiptURL(),
		})
	})
	return nil
}

// InvoicePaymentFailed переводит подписку в past_due и сообщает подписчику причину отказа.
func (s *Service) InvoicePaymentFailed(ctx context.Context, evt *stripe.Event) error {
	const op = "reconcile.InvoicePaymentFailed"
	log := s.logger(op, evt)

	var inv models.Invoice
	if err := decode(evt, &inv); err != nil {
		log.Warn("invalid invoice payload", sl.Err(err))
		return nil
	}
	subID := inv.SubscriptionID()
	if subID == "" {
		log.Debug("invoice is not attached to a subscription, skipping", slog.String("invoice_id", inv.ID))
		return nil
	}
	log = log.With(slog.String("subscription_id", subID), slog.String("invoice_id", inv.ID))

	updated, err := s.applyState(ctx, log, op, func(ctx context.Context) (bool, error) {
		return s.repo.SetSubscriptionStatus(ctx, subID, models.StatusPastDue, eventTime(evt), s.opts.EnforceEventOrder)
	})
	if !notifyAfter(updated, err) {
		return err
	}

	reason := inv.FailureReason()
	if reason == "" {
		reason = genericFailureReason
	}
	bestEffort(ctx, log, models.TemplatePaymentFailed, func(ctx context.Context) error {
		return s.notifier.Send(ctx, models.TemplatePaymentFailed, inv.CustomerEmail, inv.CustomerName, map[string]any{
			"reason":             reason,
			"update_payment_url": s.url("/account/billing"),
		})
	})
	return nil
}

// notifyAfter решает, отправлять ли письмо по счёту после обновления подписки.
// Устаревшее событие не меняет строку, но письмо о счёте всё равно уходит:
// событие подписки и событие счёта приходят почти одновременно.
func notifyAfter(updated bool, err error) bool {
	if errors.Is(err, ErrStaleEvent) {
		return true
	}
	return err == nil && updated
}
