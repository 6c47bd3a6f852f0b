package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/money"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
	"github.com/magabrotheeeer/lectio-billing/internal/storage"
)

// OrderCompleted создаёт заказ по оплаченной корзине. Шаги выполняются строго по порядку,
// ошибка шага прерывает оставшиеся, но не откатывает уже выполненные:
// товары → сумма → адрес → заказ с позициями (одна транзакция) → письмо → остатки.
func (s *Service) OrderCompleted(ctx context.Context, evt *stripe.Event, session *models.CheckoutSession, meta models.OrderCheckout) error {
	const op = "reconcile.OrderCompleted"
	log := s.logger(op, evt).With(slog.String("session_id", session.ID))

	ids := make([]string, 0, len(meta.Items))
	for _, item := range meta.Items {
		ids = append(ids, item.ID)
	}
	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		log.Error("failed to fetch products", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	orderID := s.newID()
	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(meta.Items))
	for _, ci := range meta.Items {
		p, ok := products[ci.ID]
		if !ok {
			log.Error("cart references unknown product, order not created", slog.String("product_id", ci.ID))
			return nil
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(ci.Quantity))))
		items = append(items, models.OrderItem{
			ID:              s.newID(),
			OrderID:         orderID,
			ProductID:       p.ID,
			ProductSnapshot: p,
			Quantity:        ci.Quantity,
			Price:           p.Price,
		})
	}

	shipping := session.ProviderShipping()
	if meta.Shipping != nil {
		shipping = *meta.Shipping
	}
	email := session.Email()
	if shipping.Email == "" {
		shipping.Email = email
	}
	if email == "" {
		email = shipping.Email
	}

	order := models.Order{
		ID:                orderID,
		UserID:            meta.UserID,
		Total:             total,
		Status:            models.OrderStatusPaid,
		ProviderPaymentID: session.PaymentIntent.String(),
		ProviderSessionID: session.ID,
		ShippingAddress:   shipping,
		CustomerEmail:     email,
		ShippingCost:      money.FromMinor(session.ShippingCostMinor()),
		ShippingZone:      meta.ShippingZone,
		Items:             items,
	}
	err = s.repo.CreateOrder(ctx, order)
	if errors.Is(err, storage.ErrAlreadyExists) {
		existing, lookupErr := s.repo.GetOrderBySession(ctx, session.ID)
		if lookupErr != nil {
			log.Warn("order already recorded for this session", sl.Err(lookupErr))
			return nil
		}
		log.Info("order already recorded for this session", slog.String("order_id", existing.ID))
		return nil
	}
	if err != nil {
		log.Error("failed to save order", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("order saved",
		slog.String("order_id", order.ID),
		slog.String("total", order.Total.StringFixed(2)),
		slog.Int("items", len(items)))

	bestEffort(ctx, log, models.TemplateOrderConfirmation, func(ctx context.Context) error {
		return s.notifier.Send(ctx, models.TemplateOrderConfirmation, email, shipping.Name, map[string]any{
			"order_id":         order.ID,
			"total":            money.Format(order.Total, session.Currency),
			"shipping_cost":    money.Format(order.ShippingCost, session.Currency),
			"shipping_zone":    order.ShippingZone,
			"items_summary":    itemsSummary(items),
			"shipping_name":    shipping.Name,
			"shipping_address": formatAddress(shipping),
			"order_url":        s.orderURL(log, order.ID, email),
		})
	})

	s.stock.Apply(ctx, meta.Items)
	return nil
}

// orderURL строит ссылку на заказ с подписанным токеном. Без токена ссылка
// ведёт на страницу заказа, которая попросит войти.
func (s *Service) orderURL(log *slog.Logger, orderID, email string) string {
	base := s.url("/orders/" + url.PathEscape(orderID))
	token, err := s.links.GenerateToken(orderID, email)
	if err != nil {
		log.Warn("failed to sign order link", sl.Err(err))
		return base
	}
	return base + "?token=" + url.QueryEscape(token)
}

func itemsSummary(items []models.OrderItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%d x %s (%s)", it.Quantity, it.ProductSnapshot.Name, it.Price.StringFixed(2)))
	}
	return strings.Join(lines, "\n")
}

func formatAddress(a models.ShippingAddress) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
