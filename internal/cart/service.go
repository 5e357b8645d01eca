package cart

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/trendora/storefront/internal/cache"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

// Service is the single writer of persisted cart records. No other
// component writes cart storage directly.
type Service struct {
	repo  repository.CartRepository
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
	locks sync.Map           // owner key -> *sync.Mutex, serializes merge vs. mutations
}

func NewService(repo repository.CartRepository, cache cache.CartCache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

func (s *Service) ownerLock(owner domain.Owner) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(owner.Key(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GetCart returns the owner's cart, an empty cart when none exists or when
// the stored record cannot be read. A corrupted cart degrades to empty
// rather than failing the caller.
func (s *Service) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(owner.Key(), func() (interface{}, error) {

		c, err := s.cache.Get(ctx, owner)
		if err == nil {
			return c, nil // cart is in cache
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v \n", err) // log cache error but continue
		}

		c, errGet := s.repo.GetCart(ctx, owner)
		if errGet != nil {
			if !errors.Is(errGet, repository.ErrCartNotFound) {
				log.Printf("cart read degraded to empty: %v \n", errGet)
			}
			return emptyCart(owner), nil
		}

		// set cache
		go func() {
			errSet := s.cache.Set(context.Background(), owner, c)
			if errSet != nil {
				log.Printf("cache set error: %v \n", errSet)
			}
		}()

		return c, nil // cart was not in cache, return it from repo
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem appends a new line or, when a line with the same product already
// exists, increments its quantity.
func (s *Service) AddItem(ctx context.Context, owner domain.Owner, line domain.CartLine) error {
	if line.Quantity <= 0 {
		line.Quantity = 1
	}

	mu := s.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	errAdd := s.repo.AddItem(ctx, owner, line)
	if errAdd != nil {
		log.Printf("repo add item error: %v \n", errAdd)
		return errAdd
	}

	s.invalidateCache(owner)
	return nil
}

// UpdateQuantity sets the line's quantity to an absolute value.
// A quantity of zero or less removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, owner domain.Owner, productID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, owner, productID)
	}

	mu := s.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	errUpdate := s.repo.UpdateLineQuantity(ctx, owner, productID, quantity)
	if errUpdate != nil {
		if errors.Is(errUpdate, repository.ErrLineNotFound) {
			return nil
		}
		log.Printf("repo update line quantity error: %v \n", errUpdate)
		return errUpdate
	}

	s.invalidateCache(owner)
	return nil
}

// RemoveItem deletes the matching line. Removing a line that is not in the
// cart is a no-op, not an error.
func (s *Service) RemoveItem(ctx context.Context, owner domain.Owner, productID string) error {
	mu := s.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	errRemove := s.repo.RemoveItem(ctx, owner, productID)
	if errRemove != nil {
		if errors.Is(errRemove, repository.ErrCartNotFound) || errors.Is(errRemove, repository.ErrLineNotFound) {
			return nil
		}
		log.Printf("repo remove item error: %v \n", errRemove)
		return errRemove
	}

	s.invalidateCache(owner)
	return nil
}

// Clear drops all lines and removes the persisted record for the owner.
func (s *Service) Clear(ctx context.Context, owner domain.Owner) error {
	mu := s.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	errDelete := s.repo.DeleteCart(ctx, owner)
	if errDelete != nil {
		if errors.Is(errDelete, repository.ErrCartNotFound) {
			return nil
		}
		log.Printf("repo delete cart error: %v \n", errDelete)
		return errDelete
	}

	s.invalidateCache(owner)
	return nil
}

// Total returns the sum of unit_price * quantity over all lines.
// Read failures degrade to zero, never an error.
func (s *Service) Total(ctx context.Context, owner domain.Owner) float64 {
	c, err := s.GetCart(ctx, owner)
	if err != nil {
		log.Printf("total degraded to zero: %v \n", err)
		return 0
	}
	return c.Total()
}

// UnitCount returns the total units across all lines, not the line count.
func (s *Service) UnitCount(ctx context.Context, owner domain.Owner) int {
	c, err := s.GetCart(ctx, owner)
	if err != nil {
		log.Printf("unit count degraded to zero: %v \n", err)
		return 0
	}
	return c.UnitCount()
}

// MergeGuestCart folds the guest cart into the authenticated user's cart:
// union of lines, quantities summed for products present in both. The merged
// result is persisted under the user key and the guest record is deleted.
// Holding both owner locks keeps mutations from observing the stale guest
// cart while the merge is in flight.
func (s *Service) MergeGuestCart(ctx context.Context, guestID, userID string) error {
	guest := domain.Owner{Mode: domain.OwnerModeGuest, ID: guestID}
	user := domain.Owner{Mode: domain.OwnerModeUser, ID: userID}

	guestMu := s.ownerLock(guest)
	guestMu.Lock()
	defer guestMu.Unlock()
	userMu := s.ownerLock(user)
	userMu.Lock()
	defer userMu.Unlock()

	guestCart, err := s.repo.GetCart(ctx, guest)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil // nothing to merge
		}
		return err
	}

	userCart, err := s.repo.GetCart(ctx, user)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	if userCart == nil {
		userCart = emptyCart(user)
	}

	merged := mergeLines(guestCart.Lines, userCart.Lines)

	userCart.OwnerKey = user.Key()
	userCart.Lines = merged
	if errUpsert := s.repo.UpsertCart(ctx, userCart); errUpsert != nil {
		return errUpsert
	}

	if errDelete := s.repo.DeleteCart(ctx, guest); errDelete != nil && !errors.Is(errDelete, repository.ErrCartNotFound) {
		log.Printf("failed to delete guest cart after merge: %v \n", errDelete)
	}

	s.invalidateCache(guest)
	s.invalidateCache(user)
	return nil
}

// mergeLines starts from the guest lines and folds in the user lines.
// Quantities sum, they do not replace; no line is ever dropped.
func mergeLines(guestLines, userLines []domain.CartLine) []domain.CartLine {
	merged := make([]domain.CartLine, len(guestLines))
	copy(merged, guestLines)

	for _, line := range userLines {
		found := false
		for i := range merged {
			if merged[i].ProductID == line.ProductID {
				merged[i].Quantity += line.Quantity
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, line)
		}
	}
	return merged
}

func emptyCart(owner domain.Owner) *domain.Cart {
	return &domain.Cart{
		OwnerKey:  owner.Key(),
		Lines:     nil,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (s *Service) invalidateCache(owner domain.Owner) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errInvalidate := s.cache.Delete(ctx, owner)
	if errInvalidate != nil {
		log.Printf("cache invalidate error: %v \n", errInvalidate)
	}
}
