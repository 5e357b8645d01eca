package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trendora/storefront/internal/cart"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/orders"
	"github.com/trendora/storefront/internal/payment"
)

// Orchestrator drives the checkout wizard. It never writes cart storage
// directly; clearing a purchased cart goes through the cart service.
type Orchestrator struct {
	carts      *cart.Service
	orders     orders.RepoInterface
	gateway    payment.Gateway
	pricing    PricingStrategy
	store      *Store
	currency   string
	pendingTTL time.Duration
}

func NewOrchestrator(
	carts *cart.Service,
	repo orders.RepoInterface,
	gateway payment.Gateway,
	pricing PricingStrategy,
	store *Store,
	currency string,
	pendingTTL time.Duration,
) *Orchestrator {
	return &Orchestrator{
		carts:      carts,
		orders:     repo,
		gateway:    gateway,
		pricing:    pricing,
		store:      store,
		currency:   currency,
		pendingTTL: pendingTTL,
	}
}

// Begin opens a session with the items source fixed for its lifetime:
// either the owner's persisted cart or, when buyNow is non-nil, that single
// line. Later cart edits do not reach a running session.
func (o *Orchestrator) Begin(ctx context.Context, owner domain.Owner, buyNow *domain.CartLine) (*Session, error) {
	var items []domain.OrderItem
	isBuyNow := buyNow != nil

	if isBuyNow {
		line := *buyNow
		if line.Quantity <= 0 {
			line.Quantity = 1
		}
		items = snapshotLines([]domain.CartLine{line})
	} else {
		c, err := o.carts.GetCart(ctx, owner)
		if err != nil {
			return nil, err
		}
		if len(c.Lines) == 0 {
			return nil, ErrEmptyCart
		}
		items = snapshotLines(c.Lines)
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Owner:     owner,
		BuyNow:    isBuyNow,
		Items:     items,
		Step:      StepShipping,
		Method:    domain.PaymentMethodCOD, // default selection
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.store.Put(s)
	return s, nil
}

func (o *Orchestrator) Get(id string) (*Session, error) {
	return o.store.Get(id)
}

// Quote prices the session's captured items.
func (o *Orchestrator) Quote(s *Session) Quote {
	return o.pricing.Quote(s.Items)
}

// SubmitShipping validates the shipping form and advances to the payment
// step. Validation failure leaves the step untouched.
func (o *Orchestrator) SubmitShipping(id string, info domain.ShippingInfo) error {
	s, err := o.store.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanAdvanceTo(s.Step, StepPayment) {
		return IllegalStepError
	}

	if missing := missingShippingFields(info); len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	s.Shipping = info
	s.Step = StepPayment
	s.LastError = ""
	s.UpdatedAt = time.Now()
	return nil
}

// SelectPaymentMethod records the method and advances to review. The method
// has a default, so this transition carries no validation gate.
func (o *Orchestrator) SelectPaymentMethod(id string, method domain.PaymentMethod) error {
	s, err := o.store.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanAdvanceTo(s.Step, StepReview) {
		return IllegalStepError
	}

	if method != "" {
		s.Method = method
	}
	s.Step = StepReview
	s.LastError = ""
	s.UpdatedAt = time.Now()
	return nil
}

// Abandon discards the session. Nothing is persisted, so there is no
// teardown beyond dropping it from the store.
func (o *Orchestrator) Abandon(id string) {
	o.store.Delete(id)
}

func missingShippingFields(info domain.ShippingInfo) []string {
	var missing []string
	if strings.TrimSpace(info.FirstName) == "" {
		missing = append(missing, "first_name")
	}
	if strings.TrimSpace(info.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(info.Address) == "" {
		missing = append(missing, "address")
	}
	return missing
}
