package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ExpandableID — ссылка на объект провайдера, которая в событии может прийти
// строкой-идентификатором или развёрнутым объектом с полем id.
type ExpandableID string

// UnmarshalJSON принимает "id", {"id": "..."} и null.
func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

// String возвращает идентификатор.
func (e ExpandableID) String() string {
	return string(e)
}

// Address — адрес в формате провайдера.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
	Country    string `json:"country"`
}

// Street склеивает строки адреса.
func (a *Address) Street() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join([]string{a.Line1, a.Line2}, " "))
}

// CustomerDetails — контактные данные, собранные провайдером на странице оплаты.
type CustomerDetails struct {
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address"`
}

// ShippingDetails — адрес доставки, собранный провайдером.
type ShippingDetails struct {
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address"`
}

// CheckoutSession — объект checkout.session из события checkout.session.completed.
type CheckoutSession struct {
	ID              string           `json:"id"`
	Mode            string           `json:"mode"`
	Customer        ExpandableID     `json:"customer"`
	Subscription    ExpandableID     `json:"subscription"`
	PaymentIntent   ExpandableID     `json:"payment_intent"`
	AmountTotal     int64            `json:"amount_total"`
	Currency        string           `json:"currency"`
	CustomerEmail   string           `json:"customer_email"`
	CustomerDetails *CustomerDetails `json:"customer_details"`
	ShippingDetails *ShippingDetails `json:"shipping_details"`
	Collected       *struct {
		ShippingDetails *ShippingDetails `json:"shipping_details"`
	} `json:"collected_information"`
	ShippingCost *struct {
		AmountTotal int64 `json:"amount_total"`
	} `json:"shipping_cost"`
	Metadata map[string]string `json:"metadata"`
}

// Email возвращает адрес, указанный при оплате. Это адрес сессии, а не аккаунта:
// покупатель может быть гостем.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

// Name возвращает имя плательщика, если провайдер его собрал.
func (s *CheckoutSession) Name() string {
	if s.CustomerDetails != nil {
		return s.CustomerDetails.Name
	}
	return ""
}

// ProviderShipping собирает адрес доставки из полей провайдера.
// Приоритет: collected_information.shipping_details, shipping_details, customer_details.
func (s *CheckoutSession) ProviderShipping() ShippingAddress {
	var (
		name, phone string
		addr        *Address
	)
	switch {
	case s.Collected != nil && s.Collected.ShippingDetails != nil:
		name, phone, addr = s.Collected.ShippingDetails.Name, s.Collected.ShippingDetails.Phone, s.Collected.ShippingDetails.Address
	case s.ShippingDetails != nil:
		name, phone, addr = s.ShippingDetails.Name, s.ShippingDetails.Phone, s.ShippingDetails.Address
	}
	if s.CustomerDetails != nil {
		if name == "" {
			name = s.CustomerDetails.Name
		}
		if phone == "" {
			phone = s.CustomerDetails.Phone
		}
		if addr == nil {
			addr = s.CustomerDetails.Address
		}
	}

	res := ShippingAddress{
		Name:  name,
		Phone: phone,
		Email: s.Email(),
	}
	if addr != nil {
		res.Street = addr.Street()
		res.City = addr.City
		res.PostalCode = addr.PostalCode
		res.Country = addr.Country
	}
	return res
}

// ShippingCostMinor возвращает стоимость доставки в минимальных единицах.
func (s *CheckoutSession) ShippingCostMinor() int64 {
	if s.ShippingCost == nil {
		return 0
	}
	return s.ShippingCost.AmountTotal
}

// SubscriptionItem — позиция подписки провайдера.
type SubscriptionItem struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
	Price              struct {
		UnitAmount int64  `json:"unit_amount"`
		Currency   string `json:"currency"`
	} `json:"price"`
}

// SubscriptionObject — объект subscription из событий customer.subscription.*.
type SubscriptionObject struct {
	ID                 string       `json:"id"`
	Customer           ExpandableID `json:"customer"`
	Status             string       `json:"status"`
	CancelAtPeriodEnd  bool         `json:"cancel_at_period_end"`
	CurrentPeriodStart int64        `json:"current_period_start"`
	CurrentPeriodEnd   int64        `json:"current_period_end"`
	Items              struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// Period возвращает границы текущего периода в секундах эпохи.
// В актуальной версии API они лежат на позиции подписки, в старых — на самой подписке.
func (s *SubscriptionObject) Period() (start, end int64) {
	if len(s.Items.Data) > 0 && s.Items.Data[0].CurrentPeriodEnd != 0 {
		return s.Items.Data[0].CurrentPeriodStart, s.Items.Data[0].CurrentPeriodEnd
	}
	return s.CurrentPeriodStart, s.CurrentPeriodEnd
}

// Invoice — объект invoice из событий invoice.*.
type Invoice struct {
	ID               string       `json:"id"`
	Customer         ExpandableID `json:"customer"`
	CustomerEmail    string       `json:"customer_email"`
	CustomerName     string       `json:"customer_name"`
	AmountPaid       int64        `json:"amount_paid"`
	AmountDue        int64        `json:"amount_due"`
	Currency         string       `json:"currency"`
	HostedInvoiceURL string       `json:"hosted_invoice_url"`
	InvoicePDF       string       `json:"invoice_pdf"`
	BillingReason    string       `json:"billing_reason"`
	Subscription     ExpandableID `json:"subscription"`
	Parent           *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	LastFinalizationError *struct {
		Message string `json:"message"`
	} `json:"last_finalization_error"`
}

// SubscriptionID возвращает идентификатор подписки счёта или пустую строку для разового счёта.
func (i *Invoice) SubscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription.String()
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription.String()
	}
	return ""
}

// ReceiptURL возвращает ссылку на квитанцию.
func (i *Invoice) ReceiptURL() string {
	if i.HostedInvoiceURL != "" {
		return i.HostedInvoiceURL
	}
	return i.InvoicePDF
}

// FailureReason возвращает причину неуспешной оплаты, если провайдер её указал.
func (i *Invoice) FailureReason() string {
	if i.LastFinalizationError != nil {
		return strings.TrimSpace(i.LastFinalizationError.Message)
	}
	return ""
}
