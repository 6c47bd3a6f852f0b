package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

// CreateOrder сохраняет заказ и его позиции в одной транзакции.
// Если заказ для этой сессии оплаты уже есть, ничего не пишет и возвращает ErrAlreadyExists.
func (s *Storage) CreateOrder(ctx context.Context, o models.Order) error {
	const op = "storage.CreateOrder"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `INSERT INTO orders (id, user_id, total, status, provider_payment_id,
			      provider_session_id, shipping_address, customer_email, shipping_cost, shipping_zone)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (provider_session_id) DO NOTHING
			  RETURNING id`,
		o.ID, o.UserID, o.Total, o.Status, nullString(o.ProviderPaymentID), o.ProviderSessionID,
		shipping, nullString(o.CustomerEmail), o.ShippingCost, nullString(o.ShippingZone)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (id, order_id, product_id, product_snapshot, quantity, price)
			  VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	for _, item := range o.Items {
		snapshot, err := json.Marshal(item.ProductSnapshot)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if _, err := stmt.ExecContext(ctx, item.ID, o.ID, item.ProductID, snapshot, item.Quantity, item.Price); err != nil {
			return fmt.Errorf("%s: item %s: %w", op, item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetOrderBySession возвращает заказ с позициями по идентификатору сессии оплаты.
func (s *Storage) GetOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	const op = "storage.GetOrderBySession"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var (
		o                        models.Order
		userID, paymentID, email sql.NullString
		zone                     sql.NullString
		shipping                 []byte
	)
	err := s.DB.QueryRowContext(ctx, `SELECT id, user_id, total, status, provider_payment_id, provider_session_id,
			      shipping_address, customer_email, shipping_cost, shipping_zone, created_at
			  FROM orders WHERE provider_session_id = $1`, sessionID).Scan(
		&o.ID, &userID, &o.Total, &o.Status, &paymentID, &o.ProviderSessionID,
		&shipping, &email, &o.ShippingCost, &zone, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if userID.Valid {
		o.UserID = &userID.String
	}
	o.ProviderPaymentID = paymentID.String
	o.CustomerEmail = email.String
	o.ShippingZone = zone.String
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT id, order_id, product_id, product_snapshot, quantity, price
			  FROM order_items WHERE order_id = $1 ORDER BY product_id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item     models.OrderItem
			snapshot []byte
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &snapshot, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := json.Unmarshal(snapshot, &item.ProductSnapshot); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &o, nil
}
