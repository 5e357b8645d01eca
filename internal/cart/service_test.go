package cart

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trendora/storefront/internal/cache"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/repository"
)

type mockRepository struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
	err   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: make(map[string]*domain.Cart)}
}

func (m *mockRepository) GetCart(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[owner.Key()]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return c, nil
}

func (m *mockRepository) UpsertCart(_ context.Context, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[c.OwnerKey] = c
	return nil
}

func (m *mockRepository) AddItem(_ context.Context, owner domain.Owner, line domain.CartLine) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.carts[owner.Key()]
	if !ok {
		m.carts[owner.Key()] = &domain.Cart{
			OwnerKey: owner.Key(),
			Lines:    []domain.CartLine{line},
		}
		return nil
	}
	if i := c.LineIndex(line.ProductID); i >= 0 {
		c.Lines[i].Quantity += line.Quantity
		return nil
	}
	c.Lines = append(c.Lines, line)
	return nil
}

func (m *mockRepository) UpdateLineQuantity(_ context.Context, owner domain.Owner, productID string, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.carts[owner.Key()]
	if !ok {
		return repository.ErrLineNotFound
	}
	if i := c.LineIndex(productID); i >= 0 {
		c.Lines[i].Quantity = quantity
		return nil
	}
	return repository.ErrLineNotFound
}

func (m *mockRepository) RemoveItem(_ context.Context, owner domain.Owner, productID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.carts[owner.Key()]
	if !ok {
		return repository.ErrCartNotFound
	}
	if i := c.LineIndex(productID); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
	return nil
}

func (m *mockRepository) DeleteCart(_ context.Context, owner domain.Owner) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[owner.Key()]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, owner.Key())
	return nil
}

func (m *mockRepository) getCart(owner domain.Owner) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[owner.Key()]
}

type mockCache struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	c, ok := m.carts[owner.Key()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Set(_ context.Context, owner domain.Owner, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.carts[owner.Key()] = c
	return nil
}

func (m *mockCache) Delete(_ context.Context, owner domain.Owner) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, owner.Key())
	return nil
}

func (m *mockCache) getCart(owner domain.Owner) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[owner.Key()]
}

func guestOwner(id string) domain.Owner {
	return domain.Owner{Mode: domain.OwnerModeGuest, ID: id}
}

func userOwner(id string) domain.Owner {
	return domain.Owner{Mode: domain.OwnerModeUser, ID: id}
}

func TestGetCart_NotFound_ReturnsEmptyCart(t *testing.T) {
	sut := NewService(newMockRepository(), newMockCache())

	ret, err := sut.GetCart(context.Background(), guestOwner("g1"))
	require.NoError(t, err)
	assert.NotNil(t, ret)
	assert.Empty(t, ret.Lines)
	assert.Equal(t, "guest:g1", ret.OwnerKey)
}

func TestGetCart_RepoError_DegradesToEmpty(t *testing.T) {
	mockRepo := newMockRepository()
	mockRepo.err = fmt.Errorf("storage corrupted")

	sut := NewService(mockRepo, newMockCache())
	ret, err := sut.GetCart(context.Background(), guestOwner("g1"))
	require.NoError(t, err)
	assert.Empty(t, ret.Lines)
}

func TestGetCart_CacheHit(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository() // repo should NOT be called
	mockC := newMockCache()
	mockC.carts[owner.Key()] = &domain.Cart{
		OwnerKey: owner.Key(),
		Lines:    []domain.CartLine{{ProductID: "p1", Quantity: 3}},
	}

	sut := NewService(mockRepo, mockC)
	ret, err := sut.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 1, len(ret.Lines))
	assert.Equal(t, "p1", ret.Lines[0].ProductID)
}

func TestAddItem_NewLine(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	mockC := newMockCache()
	mockC.carts[owner.Key()] = &domain.Cart{OwnerKey: owner.Key()}

	sut := NewService(mockRepo, mockC)
	err := sut.AddItem(context.Background(), owner, domain.CartLine{
		ProductID: "p1",
		Name:      "Shirt",
		UnitPrice: 500,
		Quantity:  2,
	})
	require.NoError(t, err)

	c := mockRepo.getCart(owner)
	require.NotNil(t, c)
	assert.Equal(t, 1, len(c.Lines))
	assert.Equal(t, 2, c.Lines[0].Quantity)

	// Verify cache was invalidated
	require.Eventually(t, func() bool {
		return mockC.getCart(owner) == nil
	}, 100*time.Millisecond, 10*time.Millisecond, "cache was not invalidated")
}

func TestAddItem_ExistingProduct_IncrementsQuantity(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 3}))
	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 2}))

	c := mockRepo.getCart(owner)
	require.Equal(t, 1, len(c.Lines), "adding an existing product must not create a second line")
	assert.Equal(t, 5, c.Lines[0].Quantity)
}

func TestRemoveItem_Idempotent(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 1}))
	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p2", Quantity: 1}))

	require.NoError(t, sut.RemoveItem(ctx, owner, "p1"))
	first := len(mockRepo.getCart(owner).Lines)

	// Second removal of the same product is a no-op, not an error.
	require.NoError(t, sut.RemoveItem(ctx, owner, "p1"))
	assert.Equal(t, first, len(mockRepo.getCart(owner).Lines))
	assert.Equal(t, "p2", mockRepo.getCart(owner).Lines[0].ProductID)
}

func TestRemoveItem_MissingCart_NoOp(t *testing.T) {
	sut := NewService(newMockRepository(), newMockCache())
	require.NoError(t, sut.RemoveItem(context.Background(), userOwner("123"), "p1"))
}

func TestUpdateQuantity_Absolute(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 5}))
	require.NoError(t, sut.UpdateQuantity(ctx, owner, "p1", 2))

	assert.Equal(t, 2, mockRepo.getCart(owner).Lines[0].Quantity, "quantity is absolute, not relative")
}

func TestUpdateQuantity_ZeroRemovesLine(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 5}))
	require.NoError(t, sut.UpdateQuantity(ctx, owner, "p1", 0))
	assert.Empty(t, mockRepo.getCart(owner).Lines)

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 5}))
	require.NoError(t, sut.UpdateQuantity(ctx, owner, "p1", -3))
	assert.Empty(t, mockRepo.getCart(owner).Lines)
}

func TestClear_RemovesPersistedRecord(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 1}))
	require.NoError(t, sut.Clear(ctx, owner))
	assert.Nil(t, mockRepo.getCart(owner))

	// Clearing an already-empty cart is fine.
	require.NoError(t, sut.Clear(ctx, owner))
	assert.Equal(t, 0, sut.UnitCount(ctx, owner))
}

func TestTotal(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", UnitPrice: 100, Quantity: 2}))
	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p2", UnitPrice: 50, Quantity: 1}))

	assert.Equal(t, 250.0, sut.Total(ctx, owner))
}

func TestTotal_MalformedPriceCountsAsZero(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", UnitPrice: math.NaN(), Quantity: 2}))
	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p2", UnitPrice: 50, Quantity: 1}))

	assert.Equal(t, 50.0, sut.Total(ctx, owner))
}

func TestUnitCount_SumsUnitsNotLines(t *testing.T) {
	owner := userOwner("123")
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p1", Quantity: 2}))
	require.NoError(t, sut.AddItem(ctx, owner, domain.CartLine{ProductID: "p2", Quantity: 3}))

	assert.Equal(t, 5, sut.UnitCount(ctx, owner))
}

func TestMergeGuestCart_QuantitiesSum(t *testing.T) {
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	guest := guestOwner("g1")
	user := userOwner("u1")
	require.NoError(t, sut.AddItem(ctx, guest, domain.CartLine{ProductID: "A", Quantity: 2}))
	require.NoError(t, sut.AddItem(ctx, user, domain.CartLine{ProductID: "A", Quantity: 3}))
	require.NoError(t, sut.AddItem(ctx, user, domain.CartLine{ProductID: "B", Quantity: 1}))

	require.NoError(t, sut.MergeGuestCart(ctx, "g1", "u1"))

	merged := mockRepo.getCart(user)
	require.NotNil(t, merged)
	require.Equal(t, 2, len(merged.Lines))

	quantities := map[string]int{}
	for _, l := range merged.Lines {
		quantities[l.ProductID] = l.Quantity
	}
	assert.Equal(t, 5, quantities["A"], "quantities sum, they do not replace")
	assert.Equal(t, 1, quantities["B"])

	assert.Nil(t, mockRepo.getCart(guest), "guest record must be deleted after merge")
}

func TestMergeGuestCart_NoGuestCart_NoOp(t *testing.T) {
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	user := userOwner("u1")
	require.NoError(t, sut.AddItem(ctx, user, domain.CartLine{ProductID: "A", Quantity: 3}))

	require.NoError(t, sut.MergeGuestCart(ctx, "g1", "u1"))
	assert.Equal(t, 3, mockRepo.getCart(user).Lines[0].Quantity)
}

func TestMergeGuestCart_NoUserCart(t *testing.T) {
	mockRepo := newMockRepository()
	sut := NewService(mockRepo, newMockCache())
	ctx := context.Background()

	guest := guestOwner("g1")
	require.NoError(t, sut.AddItem(ctx, guest, domain.CartLine{ProductID: "A", Quantity: 2}))

	require.NoError(t, sut.MergeGuestCart(ctx, "g1", "u1"))

	merged := mockRepo.getCart(userOwner("u1"))
	require.NotNil(t, merged)
	require.Equal(t, 1, len(merged.Lines))
	assert.Equal(t, 2, merged.Lines[0].Quantity)
	assert.Nil(t, mockRepo.getCart(guest))
}
