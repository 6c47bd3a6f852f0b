// Package paymentprovider запрашивает у платёжного провайдера авторитетное состояние подписок.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/money"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

// ErrSubscriptionNotFound возвращается, если провайдер не знает такой подписки.
var ErrSubscriptionNotFound = errors.New("subscription not found at provider")

type retrieveFunc func(ctx context.Context, id string, params *stripe.SubscriptionRetrieveParams) (*stripe.Subscription, error)

// Client обёртка над клиентом Stripe.
type Client struct {
	retrieve retrieveFunc
}

// NewClient создаёт клиента Stripe с секретным ключом secretKey.
func NewClient(secretKey string) *Client {
	sc := stripe.NewClient(secretKey)
	return &Client{
		retrieve: func(ctx context.Context, id string, params *stripe.SubscriptionRetrieveParams) (*stripe.Subscription, error) {
			return sc.V1Subscriptions.Retrieve(ctx, id, params)
		},
	}
}

// RetrieveSubscription запрашивает подписку id у провайдера.
func (c *Client) RetrieveSubscription(ctx context.Context, id string) (*models.ProviderSubscription, error) {
	const op = "paymentprovider.RetrieveSubscription"

	sub, err := c.retrieve(ctx, id, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %s: %w", op, id, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return toProviderSubscription(sub), nil
}

// toProviderSubscription берёт сумму и границы периода из первой позиции подписки.
func toProviderSubscription(sub *stripe.Subscription) *models.ProviderSubscription {
	res := &models.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		res.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		res.CurrentPeriodStart = money.FromUnix(item.CurrentPeriodStart)
		res.CurrentPeriodEnd = money.FromUnix(item.CurrentPeriodEnd)
		if item.Price != nil {
			res.UnitAmount = item.Price.UnitAmount
			res.Currency = string(item.Price.Currency)
		}
	}
	return res
}
