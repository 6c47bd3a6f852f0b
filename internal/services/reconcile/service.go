// Package reconcile содержит обработчики событий платёжного провайдера:
// каждый применяет к хранилищу ограниченный набор идемпотентных изменений
// и после успеха ставит уведомление в очередь по принципу best-effort.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
	"github.com/magabrotheeeer/lectio-billing/internal/services/inventory"
)

// ErrStaleEvent означает, что в хранилище уже отражено более позднее событие.
// Такое событие подтверждается без изменений.
var ErrStaleEvent = errors.New("stale event")

// Repository определяет операции хранилища, нужные обработчикам.
type Repository interface {
	// UpsertSubscription создаёт или обновляет подписку по provider_subscription_id.
	UpsertSubscription(ctx context.Context, sub models.Subscription, enforceOrder bool) (bool, error)
	// UpdateSubscriptionState обновляет статус, период и флаг отмены.
	UpdateSubscriptionState(ctx context.Context, st models.SubscriptionState, enforceOrder bool) (bool, error)
	// SetSubscriptionStatus меняет только статус.
	SetSubscriptionStatus(ctx context.Context, providerSubscriptionID, status string, eventAt time.Time, enforceOrder bool) (bool, error)
	// GetSubscription возвращает подписку по идентификатору провайдера.
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	// CreateDonation сохраняет пожертвование, storage.ErrAlreadyExists при повторе.
	CreateDonation(ctx context.Context, d models.Donation) error
	// GetDonationBySession возвращает ранее сохранённое пожертвование сессии.
	GetDonationBySession(ctx context.Context, sessionID string) (*models.Donation, error)
	// CreateOrder сохраняет заказ с позициями атомарно, storage.ErrAlreadyExists при повторе.
	CreateOrder(ctx context.Context, o models.Order) error
	// GetOrderBySession возвращает ранее сохранённый заказ сессии.
	GetOrderBySession(ctx context.Context, sessionID string) (*models.Order, error)
	// GetProducts возвращает текущие записи товаров.
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
}

// Provider повторно запрашивает подписку у платёжного провайдера.
type Provider interface {
	RetrieveSubscription(ctx context.Context, id string) (*models.ProviderSubscription, error)
}

// Notifier ставит уведомление в очередь.
type Notifier interface {
	Send(ctx context.Context, templateKey, email, name string, vars map[string]any) error
}

// StockAdjuster списывает остатки по позициям заказа.
type StockAdjuster interface {
	Apply(ctx context.Context, items []models.CartItem) []inventory.Result
}

// LinkSigner выпускает токен ссылки на заказ.
type LinkSigner interface {
	GenerateToken(orderID, email string) (string, error)
}

// Options настраивает обработчики.
type Options struct {
	// PublicBaseURL — базовый адрес витрины для ссылок в письмах.
	PublicBaseURL string
	// EnforceEventOrder включает защиту от применения устаревших событий.
	EnforceEventOrder bool
}

// Service реализует обработчики событий.
type Service struct {
	log      *slog.Logger
	repo     Repository
	provider Provider
	notifier Notifier
	stock    StockAdjuster
	links    LinkSigner
	opts     Options
	newID    func() string
}

// New создаёт Service.
func New(log *slog.Logger, repo Repository, provider Provider, notifier Notifier,
	stock StockAdjuster, links LinkSigner, opts Options) *Service {
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Service{
		log:      log,
		repo:     repo,
		provider: provider,
		notifier: notifier,
		stock:    stock,
		links:    links,
		opts:     opts,
		newID:    uuid.NewString,
	}
}

func (s *Service) logger(op string, evt *stripe.Event) *slog.Logger {
	return s.log.With(slog.String("op", op), sl.Event(evt.ID, string(evt.Type)))
}

func (s *Service) url(path string) string {
	return s.opts.PublicBaseURL + path
}

// eventTime возвращает время создания события у провайдера.
func eventTime(evt *stripe.Event) time.Time {
	return time.Unix(evt.Created, 0).UTC()
}

// decode разбирает объект события в dst.
func decode(evt *stripe.Event, dst any) error {
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data object", models.ErrMissingMetadata, evt.ID)
	}
	if err := json.Unmarshal(evt.Data.Raw, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %s", models.ErrMissingMetadata, evt.Type, err.Error())
	}
	return nil
}
