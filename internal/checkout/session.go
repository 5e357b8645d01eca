package checkout

import (
	"sync"
	"time"

	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/payment"
)

type Step string

const (
	StepShipping Step = "SHIPPING"
	StepPayment  Step = "PAYMENT"
	StepReview   Step = "REVIEW"
	StepPlaced   Step = "PLACED"
)

// String representation (for logging)
func (s Step) String() string {
	return string(s)
}

var stepTransitions = map[Step][]Step{
	StepShipping: {StepPayment},
	StepPayment:  {StepReview},
	StepReview:   {StepPlaced},
}

// CanAdvanceTo reports whether the wizard may move from one step to another.
// Steps are never skipped.
func CanAdvanceTo(from, to Step) bool {
	for _, allowed := range stepTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Session is one in-progress checkout attempt. It is transient: held only in
// memory and discarded on placement or abandonment. Items are captured once
// at session start, so cart edits made while checking out never change what
// the user reviewed.
type Session struct {
	mu sync.Mutex

	ID    string
	Owner domain.Owner

	// BuyNow sessions are sourced from a single ad-hoc line and never touch
	// the persisted cart.
	BuyNow bool
	Items  []domain.OrderItem

	Step     Step
	Shipping domain.ShippingInfo
	Method   domain.PaymentMethod

	// PendingIntent is non-nil while a gateway payment awaits resolution.
	PendingIntent   *payment.Intent
	PaymentDeadline time.Time

	// LastError holds the most recent retryable failure, for display.
	LastError string

	// Order is set once the session reaches StepPlaced.
	Order *domain.Order

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is a point-in-time copy of the session's mutable state. The
// webhook resolver and the store janitor mutate sessions from other
// goroutines, so renderers must read through a snapshot, never the struct.
type Snapshot struct {
	ID          string
	Owner       domain.Owner
	Items       []domain.OrderItem
	Step        Step
	Method      domain.PaymentMethod
	LastError   string
	IntentToken string
	Order       *domain.Order
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.ID,
		Owner:     s.Owner,
		Items:     s.Items,
		Step:      s.Step,
		Method:    s.Method,
		LastError: s.LastError,
		Order:     s.Order,
	}
	if s.PendingIntent != nil {
		snap.IntentToken = s.PendingIntent.Token
	}
	return snap
}

// Subtotal is recomputed from the captured items on every call, never cached.
func (s *Session) Subtotal() float64 {
	var total float64
	for _, item := range s.Items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

func snapshotLines(lines []domain.CartLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Variant:   l.Variant,
			Subtotal:  l.UnitPrice * float64(l.Quantity),
		})
	}
	return items
}
