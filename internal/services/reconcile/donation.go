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
	"github.com/magabrotheeeer/lectio-billing/internal/storage"
)

// DonationCompleted сохраняет пожертвование и отправляет квитанцию на адрес сессии оплаты.
func (s *Service) DonationCompleted(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.DonationCheckout) error {
	const op = "reconcile.DonationCompleted"
	log := s.logger(op, evt).With(slog.String("session_id", session.ID))

	d := models.Donation{
		ID:                s.newID(),
		UserID:            meta.UserID,
		Amount:            money.FromMinor(session.AmountTotal),
		ProviderPaymentID: session.PaymentIntent.String(),
		ProviderSessionID: session.ID,
		IsAnonymous:       meta.UserID == nil,
	}
	if meta.Message != "" {
		msg := meta.Message
		d.Message = &msg
	}

	err := s.repo.CreateDonation(ctx, d)
	if errors.Is(err, storage.ErrAlreadyExists) {
		existing, lookupErr := s.repo.GetDonationBySession(ctx, session.ID)
		if lookupErr != nil {
			log.Warn("donation already recorded for this session", sl.Err(lookupErr))
			return nil
		}
		log.Info("donation already recorded for this session", slog.String("donation_id", existing.ID))
		return nil
	}
	if err != nil {
		log.Error("failed to save donation", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("donation saved", slog.String("donation_id", d.ID), slog.Bool("anonymous", d.IsAnonymous))

	bestEffort(ctx, log, models.TemplateDonationReceipt, func(ctx context.Context) error {
		return s.notifier.Send(ctx, models.TemplateDonationReceipt, session.Email(), session.Name(), map[string]any{
			"amount":       money.Format(d.Amount, session.Currency),
			"message":      meta.Message,
			"has_message":  meta.Message != "",
			"is_anonymous": d.IsAnonymous,
		})
	})
	return nil
}
