package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Donation — пожертвование, созданное один раз на завершённую сессию оплаты.
// После создания не изменяется.
type Donation struct {
	ID                string
	UserID            *string // nil — анонимный донор
	Amount            decimal.Decimal
	ProviderPaymentID string
	ProviderSessionID string
	Message           *string
	IsAnonymous       bool
	CreatedAt         time.Time
}
