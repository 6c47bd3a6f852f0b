package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator"
)

// Ключи и значения метаданных, которые витрина прикрепляет к сессии оплаты.
const (
	MetaUserID          = "user_id"
	MetaTier            = "tier"
	MetaType            = "type"
	MetaItems           = "items"
	MetaShippingAddress = "shipping_address"
	MetaShippingZone    = "shipping_zone"
	MetaMessage         = "message"

	CheckoutTypeDonation     = "donation"
	CheckoutTypeProductOrder = "product_order"

	// AnonymousUser — маркер анонимного донора или гостя.
	AnonymousUser = "anonymous"

	checkoutModeSubscription = "subscription"
)

var (
	// ErrMissingMetadata означает, что провайдер прислал неполные метаданные.
	// Повтор доставки этого не исправит, поэтому событие подтверждается без изменений.
	ErrMissingMetadata = errors.New("missing or invalid checkout metadata")
	// ErrUnknownCheckout означает сессию с неизвестным значением type.
	ErrUnknownCheckout = errors.New("unknown checkout type")
)

var validate = validator.New()

// CheckoutMetadata — размеченное объединение вариантов метаданных сессии оплаты.
// Реализации: SubscriptionCheckout, DonationCheckout, OrderCheckout.
type CheckoutMetadata interface {
	CheckoutKind() string
}

// SubscriptionCheckout — оформление подписки.
type SubscriptionCheckout struct {
	UserID string `validate:"required"`
	Tier   string `validate:"required"`
}

// CheckoutKind реализует CheckoutMetadata.
func (SubscriptionCheckout) CheckoutKind() string { return checkoutModeSubscription }

// DonationCheckout — разовое пожертвование.
type DonationCheckout struct {
	UserID  *string
	Message string `validate:"max=2000"`
}

// CheckoutKind реализует CheckoutMetadata.
func (DonationCheckout) CheckoutKind() string { return CheckoutTypeDonation }

// OrderCheckout — заказ товаров.
type OrderCheckout struct {
	UserID       *string
	Items        []CartItem `validate:"required,min=1,dive"`
	Shipping     *ShippingAddress
	ShippingZone string
}

// CheckoutKind реализует CheckoutMetadata.
func (OrderCheckout) CheckoutKind() string { return CheckoutTypeProductOrder }

// CartItem — позиция корзины из метаданных.
type CartItem struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// UnmarshalJSON принимает количество как в поле quantity, так и в сокращённом qty.
func (c *CartItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
		Qty      int    `json:"qty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Quantity = raw.Quantity
	if c.Quantity == 0 {
		c.Quantity = raw.Qty
	}
	return nil
}

// ResolveUser возвращает nil для пустого значения и маркера анонимного пользователя.
func ResolveUser(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, AnonymousUser) || strings.EqualFold(v, "guest") {
		return nil
	}
	return &v
}

// ParseCheckoutMetadata проверяет метаданные сессии на границе и возвращает
// один из вариантов CheckoutMetadata. Ошибки неполных данных оборачивают ErrMissingMetadata.
func ParseCheckoutMetadata(mode string, md map[string]string) (CheckoutMetadata, error) {
	const op = "models.ParseCheckoutMetadata"

	if mode == checkoutModeSubscription {
		res := SubscriptionCheckout{
			UserID: strings.TrimSpace(md[MetaUserID]),
			Tier:   strings.TrimSpace(md[MetaTier]),
		}
		if err := validate.Struct(res); err != nil {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrMissingMetadata, err.Error())
		}
		return res, nil
	}

	switch kind := strings.TrimSpace(md[MetaType]); kind {
	case CheckoutTypeDonation:
		res := DonationCheckout{
			UserID:  ResolveUser(md[MetaUserID]),
			Message: strings.TrimSpace(md[MetaMessage]),
		}
		if err := validate.Struct(res); err != nil {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrMissingMetadata, err.Error())
		}
		return res, nil

	case CheckoutTypeProductOrder:
		rawItems := strings.TrimSpace(md[MetaItems])
		if rawItems == "" {
			return nil, fmt.Errorf("%s: %w: no items", op, ErrMissingMetadata)
		}
		var items []CartItem
		if err := json.Unmarshal([]byte(rawItems), &items); err != nil {
			return nil, fmt.Errorf("%s: %w: items: %s", op, ErrMissingMetadata, err.Error())
		}
		res := OrderCheckout{
			UserID:       ResolveUser(md[MetaUserID]),
			Items:        items,
			Shipping:     parseShipping(md[MetaShippingAddress]),
			ShippingZone: strings.TrimSpace(md[MetaShippingZone]),
		}
		if err := validate.Struct(res); err != nil {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrMissingMetadata, err.Error())
		}
		return res, nil

	default:
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnknownCheckout, kind)
	}
}

// parseShipping разбирает JSON-адрес из метаданных. Неразборчивый или пустой адрес
// даёт nil, и тогда используется адрес, собранный провайдером.
func parseShipping(raw string) *ShippingAddress {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var addr ShippingAddress
	if err := json.Unmarshal([]byte(raw), &addr); err != nil {
		return nil
	}
	if addr.IsZero() {
		return nil
	}
	return &addr
}
