package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/metrics"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
	"github.com/magabrotheeeer/lectio-billing/internal/services/reconcile"
)

type MockHandlers struct {
	mock.Mock
}

func (m *MockHandlers) SubscriptionCreated(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.SubscriptionCheckout) error {
	return m.Called(ctx, evt, session, meta).Error(0)
}

func (m *MockHandlers) SubscriptionUpdated(ctx context.Context, evt *stripe.Event) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockHandlers) SubscriptionDeleted(ctx context.Context, evt *stripe.Event) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockHandlers) InvoicePaid(ctx context.Context, evt *stripe.Event) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockHandlers) InvoicePaymentFailed(ctx context.Context, evt *stripe.Event) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockHandlers) DonationCompleted(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.DonationCheckout) error {
	return m.Called(ctx, evt, session, meta).Error(0)
}

func (m *MockHandlers) OrderCompleted(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.OrderCheckout) error {
	return m.Called(ctx, evt, session, meta).Error(0)
}

type MockDedup struct {
	mock.Mock
}

func (m *MockDedup) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedup) RememberEvent(ctx context.Context, eventID, eventType string, ttl time.Duration) error {
	return m.Called(ctx, eventID, eventType, ttl).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func event(t *testing.T, typ stripe.EventType, object any) *stripe.Event {
	t.Helper()
	evt, err := NewVerifier(testSecret).Verify(sign(t, eventBody(t, "evt_1", typ, object), testSecret))
	require.NoError(t, err)
	return evt
}

func checkout(mode string, md map[string]string) map[string]any {
	return map[string]any{
		"id":             "cs_1",
		"object":         "checkout.session",
		"mode":           mode,
		"subscription":   "sub_1",
		"customer_email": "buyer@example.com",
		"metadata":       md,
	}
}

func TestDispatcher_Routes(t *testing.T) {
	tests := []struct {
		name   string
		typ    stripe.EventType
		object any
		expect func(m *MockHandlers)
	}{
		{
			name:   "subscription checkout",
			typ:    stripe.EventTypeCheckoutSessionCompleted,
			object: checkout("subscription", map[string]string{"user_id": "u1", "tier": "patron"}),
			expect: func(m *MockHandlers) {
				m.On("SubscriptionCreated", mock.Anything, mock.Anything,
					mock.MatchedBy(func(s *models.CheckoutSession) bool { return s.Subscription == "sub_1" }),
					models.SubscriptionCheckout{UserID: "u1", Tier: "patron"}).Return(nil).Once()
			},
		},
		{
			name:   "donation checkout",
			typ:    stripe.EventTypeCheckoutSessionCompleted,
			object: checkout("payment", map[string]string{"type": "donation", "user_id": "anonymous"}),
			expect: func(m *MockHandlers) {
				m.On("DonationCompleted", mock.Anything, mock.Anything, mock.Anything, models.DonationCheckout{}).Return(nil).Once()
			},
		},
		{
			name:   "order checkout",
			typ:    stripe.EventTypeCheckoutSessionCompleted,
			object: checkout("payment", map[string]string{"type": "product_order", "items": `[{"id":"p1","qty":2}]`}),
			expect: func(m *MockHandlers) {
				m.On("OrderCompleted", mock.Anything, mock.Anything, mock.Anything,
					models.OrderCheckout{Items: []models.CartItem{{ID: "p1", Quantity: 2}}}).Return(nil).Once()
			},
		},
		{
			name:   "subscription updated",
			typ:    stripe.EventTypeCustomerSubscriptionUpdated,
			object: map[string]any{"id": "sub_1"},
			expect: func(m *MockHandlers) { m.On("SubscriptionUpdated", mock.Anything, mock.Anything).Return(nil).Once() },
		},
		{
			name:   "subscription created event applies as update",
			typ:    stripe.EventTypeCustomerSubscriptionCreated,
			object: map[string]any{"id": "sub_1"},
			expect: func(m *MockHandlers) { m.On("SubscriptionUpdated", mock.Anything, mock.Anything).Return(nil).Once() },
		},
		{
			name:   "subscription deleted",
			typ:    stripe.EventTypeCustomerSubscriptionDeleted,
			object: map[string]any{"id": "sub_1"},
			expect: func(m *MockHandlers) { m.On("SubscriptionDeleted", mock.Anything, mock.Anything).Return(nil).Once() },
		},
		{
			name:   "invoice paid",
			typ:    stripe.EventTypeInvoicePaid,
			object: map[string]any{"id": "in_1"},
			expect: func(m *MockHandlers) { m.On("InvoicePaid", mock.Anything, mock.Anything).Return(nil).Once() },
		},
		{
			name:   "invoice payment succeeded",
			typ:    stripe.EventTypeInvoicePaymentSucceeded,
			object: map[string]any{"id": "in_1"},
			expect: func(m *MockHandlers) { m.On("InvoicePaid", mock.Anything, mock.Anything).Return(nil).Once() },
		},
		{
			name:   "invoice payment failed",
			typ:    stripe.EventTypeInvoicePaymentFailed,
			object: map[string]any{"id": "in_1"},
			expect: func(m *MockHandlers) { m.On("InvoicePaymentFailed", mock.Anything, mock.Anything).Return(nil).Once() },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := new(MockHandlers)
			tt.expect(h)
			d := NewDispatcher(newNoopLogger(), h, nil, time.Hour, nil)

			res, err := d.Dispatch(context.Background(), event(t, tt.typ, tt.object))

			require.NoError(t, err)
			assert.Equal(t, metrics.OutcomeProcessed, res.Outcome)
			assert.False(t, res.Duplicate)
			h.AssertExpectations(t)
		})
	}
}

func TestDispatcher_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		typ         stripe.EventType
		object      any
		handlerErr  error
		wantOutcome string
		wantErr     bool
	}{
		{
			name:        "unknown event type",
			typ:         "customer.tax_id.created",
			object:      map[string]any{"id": "txi_1"},
			wantOutcome: metrics.OutcomeUnhandled,
		},
		{
			name:        "subscription checkout without tier",
			typ:         stripe.EventTypeCheckoutSessionCompleted,
			object:      checkout("subscription", map[string]string{"user_id": "u1"}),
			wantOutcome: metrics.OutcomeIgnored,
		},
		{
			name:        "unknown checkout type",
			typ:         stripe.EventTypeCheckoutSessionCompleted,
			object:      checkout("payment", map[string]string{"type": "gift_card"}),
			wantOutcome: metrics.OutcomeIgnored,
		},
		{
			name:        "stale event",
			typ:         stripe.EventTypeCustomerSubscriptionUpdated,
			object:      map[string]any{"id": "sub_1"},
			handlerErr:  fmt.Errorf("reconcile.SubscriptionUpdated: %w", reconcile.ErrStaleEvent),
			wantOutcome: metrics.OutcomeIgnored,
		},
		{
			name:        "handler failure",
			typ:         stripe.EventTypeCustomerSubscriptionUpdated,
			object:      map[string]any{"id": "sub_1"},
			handlerErr:  errors.New("connection reset"),
			wantOutcome: metrics.OutcomeFailed,
			wantErr:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := new(MockHandlers)
			h.On("SubscriptionUpdated", mock.Anything, mock.Anything).Return(tt.handlerErr).Maybe()
			d := NewDispatcher(newNoopLogger(), h, nil, time.Hour, nil)

			res, err := d.Dispatch(context.Background(), event(t, tt.typ, tt.object))

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			h.AssertNotCalled(t, "SubscriptionCreated", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			h.AssertNotCalled(t, "DonationCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			h.AssertNotCalled(t, "OrderCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDispatcher_Dedup(t *testing.T) {
	tests := []struct {
		name          string
		seen          bool
		seenErr       error
		handlerErr    error
		wantCalls     int
		wantRemember  bool
		wantDuplicate bool
		wantErr       bool
	}{
		{name: "first delivery", wantCalls: 1, wantRemember: true},
		{name: "repeated delivery", seen: true, wantDuplicate: true},
		{name: "dedup store down", seenErr: errors.New("redis down"), wantCalls: 1, wantRemember: true},
		{name: "failed delivery is not remembered", handlerErr: errors.New("db down"), wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := new(MockHandlers)
			h.On("InvoicePaid", mock.Anything, mock.Anything).Return(tt.handlerErr).Maybe()
			dd := new(MockDedup)
			dd.On("SeenEvent", mock.Anything, "evt_1").Return(tt.seen, tt.seenErr).Once()
			dd.On("RememberEvent", mock.Anything, "evt_1", "invoice.paid", 72*time.Hour).Return(errors.New("redis down")).Maybe()

			d := NewDispatcher(newNoopLogger(), h, dd, 72*time.Hour, metrics.NewWebhook(prometheus.NewRegistry()))
			res, err := d.Dispatch(context.Background(), event(t, stripe.EventTypeInvoicePaid, map[string]any{"id": "in_1"}))

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantDuplicate, res.Duplicate)
			h.AssertNumberOfCalls(t, "InvoicePaid", tt.wantCalls)
			if tt.wantRemember {
				dd.AssertCalled(t, "RememberEvent", mock.Anything, "evt_1", "invoice.paid", 72*time.Hour)
			} else {
				dd.AssertNotCalled(t, "RememberEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}
