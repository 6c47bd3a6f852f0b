package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

// UpsertSubscription создаёт подписку или обновляет существующую с тем же
// provider_subscription_id. Возвращает applied=false, если в строке уже отражено
// более позднее событие и enforceOrder включён.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription, enforceOrder bool) (bool, error) {
	const op = "storage.UpsertSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `INSERT INTO subscriptions (provider_subscription_id, user_id, provider_customer_id, tier,
			      amount, status, current_period_start, current_period_end, cancel_at_period_end,
			      last_event_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			  ON CONFLICT (provider_subscription_id) DO UPDATE SET
			      user_id = COALESCE(EXCLUDED.user_id, subscriptions.user_id),
			      provider_customer_id = COALESCE(NULLIF(EXCLUDED.provider_customer_id, ''), subscriptions.provider_customer_id),
			      tier = EXCLUDED.tier,
			      amount = EXCLUDED.amount,
			      status = EXCLUDED.status,
			      current_period_start = COALESCE(EXCLUDED.current_period_start, subscriptions.current_period_start),
			      current_period_end = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
			      cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			      last_event_at = GREATEST(subscriptions.last_event_at, EXCLUDED.last_event_at),
			      updated_at = NOW()
			  WHERE NOT $11 OR subscriptions.last_event_at <= EXCLUDED.last_event_at
			  RETURNING provider_subscription_id`

	var id string
	err := s.DB.QueryRowContext(ctx, query,
		sub.ProviderSubscriptionID, sub.UserID, sub.ProviderCustomerID, sub.Tier,
		sub.Amount, sub.Status, nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd,
		sub.LastEventAt, enforceOrder).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// UpdateSubscriptionState обновляет статус, период и флаг отмены подписки.
// Возвращает applied=false, если событие устарело. Отсутствующая подписка — ErrNotFound.
func (s *Storage) UpdateSubscriptionState(ctx context.Context, st models.SubscriptionState, enforceOrder bool) (bool, error) {
	const op = "storage.UpdateSubscriptionState"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE subscriptions
			  SET status = $2,
			      current_period_start = COALESCE($3, current_period_start),
			      current_period_end = COALESCE($4, current_period_end),
			      cancel_at_period_end = $5,
			      last_event_at = GREATEST(last_event_at, $6),
			      updated_at = NOW()
			  WHERE provider_subscription_id = $1
			    AND (NOT $7 OR last_event_at <= $6)`
	return s.execGuarded(ctx, op, query, st.ProviderSubscriptionID,
		st.ProviderSubscriptionID, st.Status, nullTime(st.CurrentPeriodStart), nullTime(st.CurrentPeriodEnd),
		st.CancelAtPeriodEnd, st.EventAt, enforceOrder)
}

// SetSubscriptionStatus меняет только статус подписки.
func (s *Storage) SetSubscriptionStatus(ctx context.Context, providerSubscriptionID, status string, eventAt time.Time, enforceOrder bool) (bool, error) {
	const op = "storage.SetSubscriptionStatus"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE subscriptions
			  SET status = $2,
			      last_event_at = GREATEST(last_event_at, $3),
			      updated_at = NOW()
			  WHERE provider_subscription_id = $1
			    AND (NOT $4 OR last_event_at <= $3)`
	return s.execGuarded(ctx, op, query, providerSubscriptionID,
		providerSubscriptionID, status, eventAt, enforceOrder)
}

// GetSubscription возвращает подписку по идентификатору провайдера.
func (s *Storage) GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT provider_subscription_id, user_id, provider_customer_id, tier, amount, status,
			      current_period_start, current_period_end, cancel_at_period_end, updated_at, last_event_at
			  FROM subscriptions WHERE provider_subscription_id = $1`

	var (
		res        models.Subscription
		userID     sql.NullString
		customerID sql.NullString
		start, end sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, query, providerSubscriptionID).Scan(
		&res.ProviderSubscriptionID, &userID, &customerID, &res.Tier, &res.Amount, &res.Status,
		&start, &end, &res.CancelAtPeriodEnd, &res.UpdatedAt, &res.LastEventAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if userID.Valid {
		res.UserID = &userID.String
	}
	res.ProviderCustomerID = customerID.String
	res.CurrentPeriodStart = start.Time
	res.CurrentPeriodEnd = end.Time
	return &res, nil
}

// execGuarded выполняет обновление, защищённое проверкой порядка событий.
// Ноль затронутых строк означает либо отсутствие записи, либо устаревшее событие.
func (s *Storage) execGuarded(ctx context.Context, op, query, providerSubscriptionID string, args ...any) (bool, error) {
	result, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	err = s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE provider_subscription_id = $1)`,
		providerSubscriptionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return false, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return false, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
