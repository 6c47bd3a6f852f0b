package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

// GetProducts возвращает товары с указанными идентификаторами.
// Неизвестные идентификаторы просто отсутствуют в результате.
func (s *Storage) GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error) {
	const op = "storage.GetProducts"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	res := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, description, price, stock, image_url, updated_at
			  FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p           models.Product
			description sql.NullString
			imageURL    sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &description, &p.Price, &p.Stock, &imageURL, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.Description = description.String
		p.ImageURL = imageURL.String
		res[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// DecrementStock уменьшает остаток товара на qty, не опуская его ниже нуля,
// и возвращает новый остаток. Вычисление выполняется в одном UPDATE.
func (s *Storage) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	const op = "storage.DecrementStock"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var stock int
	err := s.DB.QueryRowContext(ctx, `UPDATE products
			  SET stock = GREATEST(stock - $2, 0), updated_at = NOW()
			  WHERE id = $1
			  RETURNING stock`, productID, qty).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return stock, nil
}
