package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

// CreateDonation сохраняет пожертвование. Повтор для той же сессии оплаты
// ничего не меняет и возвращает ErrAlreadyExists.
func (s *Storage) CreateDonation(ctx context.Context, d models.Donation) error {
	const op = "storage.CreateDonation"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO donations (id, user_id, amount, provider_payment_id, provider_session_id,
			      message, is_anonymous)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (provider_session_id) DO NOTHING
			  RETURNING id`
	var id string
	err := s.DB.QueryRowContext(ctx, query,
		d.ID, d.UserID, d.Amount, nullString(d.ProviderPaymentID), d.ProviderSessionID,
		d.Message, d.IsAnonymous).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetDonationBySession возвращает пожертвование по идентификатору сессии оплаты.
func (s *Storage) GetDonationBySession(ctx context.Context, sessionID string) (*models.Donation, error) {
	const op = "storage.GetDonationBySession"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, amount, provider_payment_id, provider_session_id, message,
			      is_anonymous, created_at
			  FROM donations WHERE provider_session_id = $1`
	var (
		d         models.Donation
		userID    sql.NullString
		paymentID sql.NullString
		message   sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, query, sessionID).Scan(
		&d.ID, &userID, &d.Amount, &paymentID, &d.ProviderSessionID, &message, &d.IsAnonymous, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if userID.Valid {
		d.UserID = &userID.String
	}
	if message.Valid {
		d.Message = &message.String
	}
	d.ProviderPaymentID = paymentID.String
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
