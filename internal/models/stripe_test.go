package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandableID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ExpandableID
	}{
		{name: "string", raw: `"cus_1"`, want: "cus_1"},
		{name: "expanded object", raw: `{"id":"cus_2","object":"customer"}`, want: "cus_2"},
		{name: "null", raw: `null`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ExpandableID
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckoutSession_ProviderShipping(t *testing.T) {
	raw := `{
		"id": "cs_1",
		"customer_email": "fallback@example.com",
		"customer_details": {"email": "buyer@example.com", "name": "Buyer", "phone": "+100",
			"address": {"line1": "billing 1", "city": "Billing"}},
		"collected_information": {"shipping_details": {"name": "Receiver",
			"address": {"line1": "1 Main St", "line2": "Apt 2", "city": "Springfield", "postal_code": "12345", "country": "US"}}},
		"shipping_cost": {"amount_total": 450}
	}`
	var s CheckoutSession
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	assert.Equal(t, "buyer@example.com", s.Email())
	assert.Equal(t, int64(450), s.ShippingCostMinor())
	assert.Equal(t, ShippingAddress{
		Name:       "Receiver",
		Street:     "1 Main St Apt 2",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
		Phone:      "+100",
		Email:      "buyer@example.com",
	}, s.ProviderShipping())
}

func TestCheckoutSession_EmailFallback(t *testing.T) {
	s := CheckoutSession{CustomerEmail: "fallback@example.com"}
	assert.Equal(t, "fallback@example.com", s.Email())
	assert.Empty(t, s.Name())
	assert.Zero(t, s.ShippingCostMinor())
}

func TestSubscriptionObject_Period(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantStart int64
		wantEnd   int64
	}{
		{
			name:      "period on item",
			raw:       `{"id":"sub_1","current_period_start":1,"current_period_end":2,"items":{"data":[{"current_period_start":100,"current_period_end":200}]}}`,
			wantStart: 100,
			wantEnd:   200,
		},
		{
			name:      "legacy period on subscription",
			raw:       `{"id":"sub_1","current_period_start":1,"current_period_end":2,"items":{"data":[]}}`,
			wantStart: 1,
			wantEnd:   2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s SubscriptionObject
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &s))
			start, end := s.Period()
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestInvoice_Accessors(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantSub     string
		wantReceipt string
		wantReason  string
	}{
		{
			name:        "legacy subscription field",
			raw:         `{"id":"in_1","subscription":"sub_1","invoice_pdf":"https://x/pdf"}`,
			wantSub:     "sub_1",
			wantReceipt: "https://x/pdf",
		},
		{
			name:        "parent subscription details",
			raw:         `{"id":"in_1","parent":{"subscription_details":{"subscription":"sub_2"}},"hosted_invoice_url":"https://x/h","invoice_pdf":"https://x/pdf","last_finalization_error":{"message":" declined "}}`,
			wantSub:     "sub_2",
			wantReceipt: "https://x/h",
			wantReason:  "declined",
		},
		{
			name: "one-off invoice",
			raw:  `{"id":"in_1"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inv Invoice
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &inv))
			assert.Equal(t, tt.wantSub, inv.SubscriptionID())
			assert.Equal(t, tt.wantReceipt, inv.ReceiptURL())
			assert.Equal(t, tt.wantReason, inv.FailureReason())
		})
	}
}
