package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trendora/storefront/internal/cache"
	"github.com/trendora/storefront/internal/cart"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/identity"
	"github.com/trendora/storefront/internal/orders"
	"github.com/trendora/storefront/internal/products"
	"github.com/trendora/storefront/internal/repository"
)

// fakeCartRepo is an in-memory cart store keyed like the Mongo repository.
type fakeCartRepo struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[string]*domain.Cart)}
}

func (r *fakeCartRepo) GetCart(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	c, ok := r.carts[owner.Key()]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return c, nil
}

func (r *fakeCartRepo) UpsertCart(_ context.Context, c *domain.Cart) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.carts[c.OwnerKey] = c
	return nil
}

func (r *fakeCartRepo) AddItem(_ context.Context, owner domain.Owner, line domain.CartLine) error {
	r.m.Lock()
	defer r.m.Unlock()
	c, ok := r.carts[owner.Key()]
	if !ok {
		r.carts[owner.Key()] = &domain.Cart{OwnerKey: owner.Key(), Lines: []domain.CartLine{line}}
		return nil
	}
	if i := c.LineIndex(line.ProductID); i >= 0 {
		c.Lines[i].Quantity += line.Quantity
		return nil
	}
	c.Lines = append(c.Lines, line)
	return nil
}

func (r *fakeCartRepo) UpdateLineQuantity(_ context.Context, owner domain.Owner, productID string, quantity int) error {
	r.m.Lock()
	defer r.m.Unlock()
	c, ok := r.carts[owner.Key()]
	if !ok {
		return repository.ErrLineNotFound
	}
	if i := c.LineIndex(productID); i >= 0 {
		c.Lines[i].Quantity = quantity
		return nil
	}
	return repository.ErrLineNotFound
}

func (r *fakeCartRepo) RemoveItem(_ context.Context, owner domain.Owner, productID string) error {
	r.m.Lock()
	defer r.m.Unlock()
	c, ok := r.carts[owner.Key()]
	if !ok {
		return repository.ErrCartNotFound
	}
	if i := c.LineIndex(productID); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
	return nil
}

func (r *fakeCartRepo) DeleteCart(_ context.Context, owner domain.Owner) error {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.carts[owner.Key()]; !ok {
		return repository.ErrCartNotFound
	}
	delete(r.carts, owner.Key())
	return nil
}

type missCache struct{}

func (missCache) Get(context.Context, domain.Owner) (*domain.Cart, error) {
	return nil, cache.ErrCacheMiss
}
func (missCache) Set(context.Context, domain.Owner, *domain.Cart) error { return nil }

func (missCache) Delete(context.Context, domain.Owner) error { return nil }

// fakeProducts serves a fixed catalog.
type fakeProducts struct {
	byID map[string]*products.Product
}

func newFakeProducts(list ...*products.Product) *fakeProducts {
	byID := make(map[string]*products.Product)
	for _, p := range list {
		byID[p.ID] = p
	}
	return &fakeProducts{byID: byID}
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (*products.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, products.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeProducts) ListProducts(_ context.Context, category string) ([]*products.Product, error) {
	var out []*products.Product
	for _, p := range f.byID {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeIdentity resolves tokens from a fixed map.
type fakeIdentity struct {
	sessions map[string]*identity.Session
}

func (f *fakeIdentity) CurrentSession(_ context.Context, token string) (*identity.Session, error) {
	s, ok := f.sessions[token]
	if !ok {
		return nil, identity.ErrNoSession
	}
	return s, nil
}

// fakeOrdersRepo records created orders in memory.
type fakeOrdersRepo struct {
	m       sync.RWMutex
	created []*domain.Order
}

func (r *fakeOrdersRepo) Close() error { return nil }

func (r *fakeOrdersRepo) RunMigrations(*orders.Credentials) error { return nil }

func (r *fakeOrdersRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.created = append(r.created, order)
	return nil
}

func (r *fakeOrdersRepo) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	for _, o := range r.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

func (r *fakeOrdersRepo) ListOrdersByOwner(_ context.Context, ownerKey string) ([]*domain.Order, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	var out []*domain.Order
	for _, o := range r.created {
		if o.OwnerKey == ownerKey {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeOrdersRepo) UpdateStatus(_ context.Context, id uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	r.m.Lock()
	defer r.m.Unlock()
	for _, o := range r.created {
		if o.ID == id {
			if !domain.CanTransitionTo(o.Status, to) {
				return nil, orders.ErrIllegalTransition
			}
			o.Status = to
			return o, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

func (r *fakeOrdersRepo) EnqueueEvent(context.Context, string, string, []byte) error { return nil }

func (r *fakeOrdersRepo) GetUnprocessedEvents(context.Context, int) ([]*orders.OutboxEvent, error) {
	return nil, nil
}

func (r *fakeOrdersRepo) MarkEventAsProcessed(context.Context, int64) error { return nil }

func newTestCartService() (*cart.Service, *fakeCartRepo) {
	repo := newFakeCartRepo()
	return cart.NewService(repo, missCache{}), repo
}

func withOwner(r *http.Request, owner domain.Owner) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "owner", owner))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func seedCart(t *testing.T, svc *cart.Service, owner domain.Owner, lines ...domain.CartLine) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, svc.AddItem(context.Background(), owner, l))
	}
}

func testUser() domain.Owner {
	return domain.Owner{Mode: domain.OwnerModeUser, ID: "u1"}
}

func doRequest(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	h(recorder, r)
	return recorder
}

const testTimeout = 5 * time.Second
