package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatusPaid — начальный статус заказа, созданного по завершённой оплате.
const OrderStatusPaid = "paid"

// ShippingAddress — адрес доставки заказа.
type ShippingAddress struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// IsZero сообщает, что адрес не содержит ни одного значимого поля.
func (a ShippingAddress) IsZero() bool {
	return a.Name == "" && a.Street == "" && a.City == "" && a.PostalCode == "" && a.Country == ""
}

// Order — заказ, созданный один раз на завершённую сессию оплаты товаров.
type Order struct {
	ID                string
	UserID            *string // nil — гостевой заказ
	Total             decimal.Decimal
	Status            string
	ProviderPaymentID string
	ProviderSessionID string
	ShippingAddress   ShippingAddress
	CustomerEmail     string
	ShippingCost      decimal.Decimal
	ShippingZone      string
	CreatedAt         time.Time
	Items             []OrderItem
}

// OrderItem — позиция заказа со снимком товара на момент покупки.
type OrderItem struct {
	ID              string
	OrderID         string
	ProductID       string
	ProductSnapshot Product
	Quantity        int
	Price           decimal.Decimal
}
