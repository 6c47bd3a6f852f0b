package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/jwt"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
	"github.com/magabrotheeeer/lectio-billing/internal/services/inventory"
	"github.com/magabrotheeeer/lectio-billing/internal/storage"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// memoryRepo повторяет семантику SQL-хранилища в памяти.
type memoryRepo struct {
	mu          sync.Mutex
	subs        map[string]models.Subscription
	donations   map[string]models.Donation
	orders      map[string]models.Order
	products    map[string]models.Product
	writes      int
	lookups     []string
	productsErr error
	orderErr    error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		subs:      map[string]models.Subscription{},
		donations: map[string]models.Donation{},
		orders:    map[string]models.Order{},
		products:  map[string]models.Product{},
	}
}

func fresh(enforce bool, stored, incoming time.Time) bool {
	return !enforce || !stored.After(incoming)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func (r *memoryRepo) UpsertSubscription(_ context.Context, sub models.Subscription, enforce bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.subs[sub.ProviderSubscriptionID]; ok {
		if !fresh(enforce, cur.LastEventAt, sub.LastEventAt) {
			return false, nil
		}
		sub.LastEventAt = later(cur.LastEventAt, sub.LastEventAt)
	}
	sub.UpdatedAt = time.Now()
	r.subs[sub.ProviderSubscriptionID] = sub
	r.writes++
	return true, nil
}

func (r *memoryRepo) UpdateSubscriptionState(_ context.Context, st models.SubscriptionState, enforce bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[st.ProviderSubscriptionID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !fresh(enforce, cur.LastEventAt, st.EventAt) {
		return false, nil
	}
	cur.Status = st.Status
	if !st.CurrentPeriodStart.IsZero() {
		cur.CurrentPeriodStart = st.CurrentPeriodStart
	}
	if !st.CurrentPeriodEnd.IsZero() {
		cur.CurrentPeriodEnd = st.CurrentPeriodEnd
	}
	cur.CancelAtPeriodEnd = st.CancelAtPeriodEnd
	cur.LastEventAt = later(cur.LastEventAt, st.EventAt)
	cur.UpdatedAt = time.Now()
	r.subs[st.ProviderSubscriptionID] = cur
	r.writes++
	return true, nil
}

func (r *memoryRepo) SetSubscriptionStatus(_ context.Context, id, status string, at time.Time, enforce bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !fresh(enforce, cur.LastEventAt, at) {
		return false, nil
	}
	cur.Status = status
	cur.LastEventAt = later(cur.LastEventAt, at)
	cur.UpdatedAt = time.Now()
	r.subs[id] = cur
	r.writes++
	return true, nil
}

func (r *memoryRepo) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cur, nil
}

func (r *memoryRepo) CreateDonation(_ context.Context, d models.Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.donations[d.ProviderSessionID]; ok {
		return fmt.Errorf("storage.CreateDonation: %w", storage.ErrAlreadyExists)
	}
	r.donations[d.ProviderSessionID] = d
	r.writes++
	return nil
}

func (r *memoryRepo) CreateOrder(_ context.Context, o models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.orderErr != nil {
		return r.orderErr
	}
	if _, ok := r.orders[o.ProviderSessionID]; ok {
		return fmt.Errorf("storage.CreateOrder: %w", storage.ErrAlreadyExists)
	}
	r.orders[o.ProviderSessionID] = o
	r.writes++
	return nil
}

func (r *memoryRepo) GetDonationBySession(_ context.Context, sessionID string) (*models.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, sessionID)
	d, ok := r.donations[sessionID]
	if !ok {
		return nil, fmt.Errorf("storage.GetDonationBySession: %w", storage.ErrNotFound)
	}
	return &d, nil
}

func (r *memoryRepo) GetOrderBySession(_ context.Context, sessionID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, sessionID)
	o, ok := r.orders[sessionID]
	if !ok {
		return nil, fmt.Errorf("storage.GetOrderBySession: %w", storage.ErrNotFound)
	}
	return &o, nil
}

func (r *memoryRepo) GetProducts(_ context.Context, ids []string) (map[string]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.productsErr != nil {
		return nil, r.productsErr
	}
	res := map[string]models.Product{}
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (r *memoryRepo) DecrementStock(_ context.Context, id string, qty int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	p.Stock = inventory.Remaining(p.Stock, qty)
	r.products[id] = p
	r.writes++
	return p.Stock, nil
}

func (r *memoryRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) RetrieveSubscription(ctx context.Context, id string) (*models.ProviderSubscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProviderSubscription), args.Error(1)
}

type sentNotification struct {
	Template string
	Email    string
	Name     string
	Vars     map[string]any
}

// recordingNotifier запоминает попытки отправки; err и panicMsg имитируют сбои брокера.
type recordingNotifier struct {
	mu       sync.Mutex
	sent     []sentNotification
	err      error
	panicMsg string
}

func (n *recordingNotifier) Send(_ context.Context, templateKey, email, name string, vars map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Template: templateKey, Email: email, Name: name, Vars: vars})
	if n.panicMsg != "" {
		panic(n.panicMsg)
	}
	return n.err
}

func (n *recordingNotifier) attempts() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

const linkSecret = "order-link-secret"

type fixture struct {
	repo     *memoryRepo
	provider *MockProvider
	notifier *recordingNotifier
	links    *jwt.MakerImpl
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryRepo(),
		provider: new(MockProvider),
		notifier: &recordingNotifier{},
		links:    jwt.NewJWTMaker(linkSecret, time.Hour),
	}
	f.svc = New(newNoopLogger(), f.repo, f.provider, f.notifier,
		inventory.New(newNoopLogger(), f.repo), f.links,
		Options{PublicBaseURL: "https://lectio.example.com/", EnforceEventOrder: true})
	ids := 0
	f.svc.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	t.Cleanup(func() { f.provider.AssertExpectations(t) })
	return f
}

func parseLinkToken(t *testing.T, token string) *jwt.OrderClaims {
	t.Helper()
	claims := &jwt.OrderClaims{}
	_, err := jwtlib.ParseWithClaims(token, claims, func(_ *jwtlib.Token) (any, error) {
		return []byte(linkSecret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	require.NoError(t, err)
	return claims
}

func newEvent(t *testing.T, id string, typ stripe.EventType, created time.Time, object any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripe.Event{
		ID:      id,
		Type:    typ,
		Created: created.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

var errDown = errors.New("connection refused")
