package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trendora/storefront/internal/cache"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/orders"
	"github.com/trendora/storefront/internal/payment"
	"github.com/trendora/storefront/internal/repository"
)

// memCartRepo is an in-memory stand-in for the Mongo cart repository, keyed
// the same way (one record per owner key).
type memCartRepo struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]*domain.Cart)}
}

func (r *memCartRepo) GetCart(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	c, ok := r.carts[owner.Key()]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return c, nil
}

func (r *memCartRepo) UpsertCart(_ context.Context, c *domain.Cart) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.carts[c.OwnerKey] = c
	return nil
}

func (r *memCartRepo) AddItem(_ context.Context, owner domain.Owner, line domain.CartLine) error {
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

func (r *memCartRepo) UpdateLineQuantity(_ context.Context, owner domain.Owner, productID string, quantity int) error {
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

func (r *memCartRepo) RemoveItem(_ context.Context, owner domain.Owner, productID string) error {
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

func (r *memCartRepo) DeleteCart(_ context.Context, owner domain.Owner) error {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.carts[owner.Key()]; !ok {
		return repository.ErrCartNotFound
	}
	delete(r.carts, owner.Key())
	return nil
}

func (r *memCartRepo) getCart(owner domain.Owner) *domain.Cart {
	r.m.RLock()
	defer r.m.RUnlock()
	return r.carts[owner.Key()]
}

// noopCache always misses so every read goes to the repo.
type noopCache struct{}

func (noopCache) Get(context.Context, domain.Owner) (*domain.Cart, error) {
	return nil, cache.ErrCacheMiss
}
func (noopCache) Set(context.Context, domain.Owner, *domain.Cart) error { return nil }
func (noopCache) Delete(context.Context, domain.Owner) error            { return nil }

type capturedEvent struct {
	aggregateID string
	eventType   string
	payload     []byte
}

// mockOrdersRepo records CreateOrder and EnqueueEvent calls.
type mockOrdersRepo struct {
	m          sync.RWMutex
	created    []*domain.Order
	events     []capturedEvent
	createErr  error
	enqueueErr error
}

func (r *mockOrdersRepo) Close() error { return nil }

func (r *mockOrdersRepo) RunMigrations(*orders.Credentials) error { return nil }

func (r *mockOrdersRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	r.created = append(r.created, order)
	return nil
}

func (r *mockOrdersRepo) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	for _, o := range r.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

func (r *mockOrdersRepo) ListOrdersByOwner(_ context.Context, ownerKey string) ([]*domain.Order, error) {
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

func (r *mockOrdersRepo) UpdateStatus(_ context.Context, id uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
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

func (r *mockOrdersRepo) EnqueueEvent(_ context.Context, aggregateID, eventType string, payload []byte) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.enqueueErr != nil {
		return r.enqueueErr
	}
	r.events = append(r.events, capturedEvent{aggregateID: aggregateID, eventType: eventType, payload: payload})
	return nil
}

func (r *mockOrdersRepo) GetUnprocessedEvents(context.Context, int) ([]*orders.OutboxEvent, error) {
	return nil, nil
}
func (r *mockOrdersRepo) MarkEventAsProcessed(context.Context, int64) error { return nil }

func (r *mockOrdersRepo) createdOrders() []*domain.Order {
	r.m.RLock()
	defer r.m.RUnlock()
	return append([]*domain.Order(nil), r.created...)
}

func (r *mockOrdersRepo) capturedEvents() []capturedEvent {
	r.m.RLock()
	defer r.m.RUnlock()
	return append([]capturedEvent(nil), r.events...)
}

// mockGateway hands out sequential intents or a configured error.
type mockGateway struct {
	m       sync.Mutex
	err     error
	intents int
}

func (g *mockGateway) CreateIntent(_ context.Context, amount float64, currency string) (*payment.Intent, error) {
	g.m.Lock()
	defer g.m.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.intents++
	return &payment.Intent{Token: "tok-1", Amount: amount, Currency: currency}, nil
}
