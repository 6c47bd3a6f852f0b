// Package models содержит доменные структуры сервиса сверки платёжных событий:
// подписки, пожертвования, заказы и товары, а также типы, в которые
// декодируются события платёжного провайдера.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы подписки. Значения повторяют словарь провайдера, кроме StatusCancelled,
// который выставляется при удалении подписки на стороне провайдера.
const (
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
)

// Subscription представляет строку подписки в хранилище.
// Ключ идемпотентности — ProviderSubscriptionID.
type Subscription struct {
	ProviderSubscriptionID string
	UserID                 *string // nil, пока владелец не определён
	ProviderCustomerID     string
	Tier                   string
	Amount                 decimal.Decimal
	Status                 string
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	UpdatedAt              time.Time
	LastEventAt            time.Time // время создания последнего применённого события провайдера
}

// SubscriptionState — изменяемая часть подписки, которую приносят события обновления и продления.
type SubscriptionState struct {
	ProviderSubscriptionID string
	Status                 string
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	EventAt                time.Time
}

// ProviderSubscription — авторитетные данные подписки, полученные повторным запросом к провайдеру.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	UnitAmount         int64 // в минимальных единицах валюты
	Currency           string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// State возвращает изменяемую часть подписки для применения к хранилищу.
func (p *ProviderSubscription) State(eventAt time.Time) SubscriptionState {
	return SubscriptionState{
		ProviderSubscriptionID: p.ID,
		Status:                 p.Status,
		CurrentPeriodStart:     p.CurrentPeriodStart,
		CurrentPeriodEnd:       p.CurrentPeriodEnd,
		CancelAtPeriodEnd:      p.CancelAtPeriodEnd,
		EventAt:                eventAt,
	}
}
