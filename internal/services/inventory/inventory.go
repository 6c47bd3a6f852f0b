// Package inventory списывает остатки товаров после оплаченного заказа.
package inventory

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

// StockRepository атомарно уменьшает остаток товара, не опуская его ниже нуля.
type StockRepository interface {
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
}

// Result — итог списания по одному товару.
type Result struct {
	ProductID string
	Remaining int
	Err       error
}

// Adjuster списывает остатки по позициям заказа.
type Adjuster struct {
	log  *slog.Logger
	repo StockRepository
}

// New создаёт Adjuster.
func New(log *slog.Logger, repo StockRepository) *Adjuster {
	return &Adjuster{log: log, repo: repo}
}

// Remaining возвращает остаток после списания ordered единиц: max(0, current-ordered).
func Remaining(current, ordered int) int {
	if ordered >= current {
		return 0
	}
	return current - ordered
}

// Apply списывает остатки по каждой позиции независимо. Ошибка по одному товару
// логируется и не мешает остальным; Apply никогда не прерывает обработку заказа.
func (a *Adjuster) Apply(ctx context.Context, items []models.CartItem) []Result {
	const op = "inventory.Apply"
	log := a.log.With(slog.String("op", op))

	results := make([]Result, 0, len(items))
	for _, item := range items {
		remaining, err := a.repo.DecrementStock(ctx, item.ID, item.Quantity)
		if err != nil {
			log.Error("failed to decrement stock",
				slog.String("product_id", item.ID),
				slog.Int("quantity", item.Quantity),
				sl.Err(err))
		} else {
			log.Debug("stock decremented",
				slog.String("product_id", item.ID),
				slog.Int("remaining", remaining))
		}
		results = append(results, Result{ProductID: item.ID, Remaining: remaining, Err: err})
	}
	return results
}
