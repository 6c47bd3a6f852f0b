package models

// Ключи шаблонов уведомлений.
const (
	TemplateSubscriptionCreated = "subscription_created"
	TemplateSubscriptionRenewed = "subscription_renewed"
	TemplatePaymentFailed       = "payment_failed"
	TemplateDonationReceipt     = "donation_receipt"
	TemplateOrderConfirmation   = "order_confirmation"
)

// Notification — сообщение для сервиса отправки писем.
// Значения Variables ограничены строками, числами и булевыми значениями;
// булевы значения управляют условными секциями шаблона.
type Notification struct {
	Template  string         `json:"template"`
	To        string         `json:"to"`
	Name      string         `json:"name,omitempty"`
	Variables map[string]any `json:"variables"`
}
