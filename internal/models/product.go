package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — товар витрины. Сервис только читает цену и название для снимка
// и записывает уменьшенный остаток.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
