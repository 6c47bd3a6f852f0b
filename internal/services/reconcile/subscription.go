package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/money"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
	"github.com/magabrotheeeer/lectio-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/lectio-billing/internal/storage"
)

// SubscriptionCreated сохраняет подписку, оформленную через сессию оплаты.
// Период и сумма берутся из повторного запроса к провайдеру.
func (s *Service) SubscriptionCreated(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.SubscriptionCheckout) error {
	const op = "reconcile.SubscriptionCreated"
	log := s.logger(op, evt).With(slog.String("session_id", session.ID))

	subID := session.Subscription.String()
	if subID == "" {
		log.Warn("checkout session has no subscription id, nothing to reconcile")
		return nil
	}
	log = log.With(slog.String("subscription_id", subID))

	ps, err := s.provider.RetrieveSubscription(ctx, subID)
	if err != nil {
		return s.retrieveFailed(log, op, err)
	}

	customerID := ps.CustomerID
	if customerID == "" {
		customerID = session.Customer.String()
	}
	userID := meta.UserID
	sub := models.Subscription{
		ProviderSubscriptionID: ps.ID,
		UserID:                 &userID,
		ProviderCustomerID:     customerID,
		Tier:                   meta.Tier,
		Amount:                 money.FromMinor(ps.UnitAmount),
		Status:                 ps.Status,
		CurrentPeriodStart:     ps.CurrentPeriodStart,
		CurrentPeriodEnd:       ps.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ps.CancelAtPeriodEnd,
		LastEventAt:            eventTime(evt),
	}
	applied, err := s.repo.UpsertSubscription(ctx, sub, s.opts.EnforceEventOrder)
	if err != nil {
		log.Error("failed to upsert subscription", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		log.Info("subscription already reflects a newer event")
		return fmt.Errorf("%s: %w", op, ErrStaleEvent)
	}
	log.Info("subscription upserted", slog.String("tier", meta.Tier), slog.String("status", ps.Status))

	bestEffort(ctx, log, models.TemplateSubscriptionCreated, func(ctx context.Context) error {
		return s.notifier.Send(ctx, models.TemplateSubscriptionCreated, session.Email(), session.Name(), map[string]any{
			"tier":              meta.Tier,
			"amount":            money.Format(sub.Amount, ps.Currency),
			"next_billing_date": money.FormatDate(ps.CurrentPeriodEnd),
			"manage_url":        s.url("/account/subscription"),
		})
	})
	return nil
}

// SubscriptionUpdated применяет статус, период и флаг отмены из события обновления.
func (s *Service) SubscriptionUpdated(ctx context.Context, evt *stripe.Event) error {
	const op = "reconcile.SubscriptionUpdated"
	log := s.logger(op, evt)

	var obj models.SubscriptionObject
	if err := decode(evt, &obj); err != nil {
		log.Warn("invalid subscription payload", sl.Err(err))
		return nil
	}
	if obj.ID == "" {
		log.Warn("subscription payload has no id")
		return nil
	}
	log = log.With(slog.String("subscription_id", obj.ID))

	start, end := obj.Period()
	st := models.SubscriptionState{
		ProviderSubscriptionID: obj.ID,
		Status:                 obj.Status,
		CurrentPeriodStart:     money.FromUnix(start),
		CurrentPeriodEnd:       money.FromUnix(end),
		CancelAtPeriodEnd:      obj.CancelAtPeriodEnd,
		EventAt:                eventTime(evt),
	}
	_, err := s.applyState(ctx, log, op, func(ctx context.Context) (bool, error) {
		return s.repo.UpdateSubscriptionState(ctx, st, s.opts.EnforceEventOrder)
	})
	return err
}

// SubscriptionDeleted переводит подписку в статус cancelled. Строка не удаляется.
func (s *Service) SubscriptionDeleted(ctx context.Context, evt *stripe.Event) error {
	const op = "reconcile.SubscriptionDeleted"
	log := s.logger(op, evt)

	var obj models.SubscriptionObject
	if err := decode(evt, &obj); err != nil {
		log.Warn("invalid subscription payload", sl.Err(err))
		return nil
	}
	if obj.ID == "" {
		log.Warn("subscription payload has no id")
		return nil
	}
	log = log.With(slog.String("subscription_id", obj.ID))

	_, err := s.applyState(ctx, log, op, func(ctx context.Context) (bool, error) {
		return s.repo.SetSubscriptionStatus(ctx, obj.ID, models.StatusCancelled, eventTime(evt), s.opts.EnforceEventOrder)
	})
	return err
}

// applyState выполняет обновление подписки и сводит его результат к исходу обработчика.
// updated=true только если строка изменена. Неизвестная подписка подтверждается без изменений
// (строку создаёт обработчик оформления), устаревшее событие даёт ErrStaleEvent.
func (s *Service) applyState(ctx context.Context, log *slog.Logger, op string, update func(ctx context.Context) (bool, error)) (bool, error) {
	applied, err := update(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Warn("subscription is not known yet, skipping")
		return false, nil
	case err != nil:
		log.Error("failed to update subscription", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	case !applied:
		log.Info("subscription already reflects a newer event")
		return false, fmt.Errorf("%s: %w", op, ErrStaleEvent)
	}
	log.Info("subscription updated")
	return true, nil
}

// retrieveFailed сводит ошибку запроса подписки к исходу обработчика.
// Подписка, удалённая у провайдера, не появится при повторной доставке, поэтому событие подтверждается.
func (s *Service) retrieveFailed(log *slog.Logger, op string, err error) error {
	if errors.Is(err, paymentprovider.ErrSubscriptionNotFound) {
		log.Warn("subscription no longer exists at the provider, skipping", sl.Err(err))
		return nil
	}
	log.Error("failed to retrieve subscription", sl.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}
