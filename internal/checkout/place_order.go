package checkout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/payment"
)

// PlacementResult is what "place order" produced: a recorded order for the
// COD path, or a gateway intent the client must take to the payment UI.
type PlacementResult struct {
	Order  *domain.Order
	Intent *payment.Intent
}

// PlaceOrder executes the review-step placement. COD orders are recorded
// immediately; gateway orders get a payment intent and wait for resolution
// via ResolveGatewayPayment. All failures here happen before any charge, so
// the session stays in review and the user may simply retry.
func (o *Orchestrator) PlaceOrder(ctx context.Context, id string) (*PlacementResult, error) {
	s, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanAdvanceTo(s.Step, StepPlaced) {
		return nil, IllegalStepError
	}
	if s.PendingIntent != nil {
		return nil, ErrPaymentPending
	}

	switch s.Method {
	case domain.PaymentMethodGateway:
		return o.beginGatewayPayment(ctx, s)
	default:
		return o.placeCOD(ctx, s)
	}
}

func (o *Orchestrator) placeCOD(ctx context.Context, s *Session) (*PlacementResult, error) {
	order, err := o.persistOrder(ctx, s, domain.PaymentMethodCOD, "")
	if err != nil {
		s.LastError = "could not record your order, please try again"
		s.UpdatedAt = time.Now()
		return nil, fmt.Errorf("%w: %v", ErrOrderPersist, err)
	}

	o.finishPlacement(ctx, s, order)
	return &PlacementResult{Order: order}, nil
}

func (o *Orchestrator) beginGatewayPayment(ctx context.Context, s *Session) (*PlacementResult, error) {
	quote := o.pricing.Quote(s.Items)

	intent, err := o.gateway.CreateIntent(ctx, quote.Total, o.currency)
	if err != nil {
		s.LastError = "could not start the payment, please try again"
		s.UpdatedAt = time.Now()
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	s.PendingIntent = intent
	s.PaymentDeadline = time.Now().Add(o.pendingTTL)
	s.LastError = ""
	s.UpdatedAt = time.Now()
	return &PlacementResult{Intent: intent}, nil
}

// ResolveGatewayPayment applies the gateway outcome to the session. A
// dismissed payment returns (nil, nil) with the session back in review and
// no order created.
func (o *Orchestrator) ResolveGatewayPayment(ctx context.Context, id string, result payment.Result) (*domain.Order, error) {
	s, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.PendingIntent == nil {
		// A capture arriving after the janitor expired the attempt still
		// means the user was charged. Record the order anyway; the charge
		// must never vanish behind a 409.
		if result.Kind == payment.ResultCompleted && s.Order == nil {
			return o.recoverLateCapture(ctx, s, result.Reference)
		}
		return nil, ErrNoPaymentPending
	}
	s.PendingIntent = nil
	s.UpdatedAt = time.Now()

	switch result.Kind {
	case payment.ResultCompleted:
		order, persistErr := o.persistOrder(ctx, s, domain.PaymentMethodGateway, result.Reference)
		if persistErr != nil {
			// The charge already happened. This must not be retried blindly;
			// leave a reconciliation notice for support instead.
			o.recordReconciliationGap(s, result.Reference, persistErr)
			s.LastError = "payment succeeded but the order could not be recorded, contact support"
			return nil, fmt.Errorf("%w (payment ref %s): %v", ErrPaymentNotRecorded, result.Reference, persistErr)
		}
		o.finishPlacement(ctx, s, order)
		return order, nil

	case payment.ResultDismissed:
		// User closed the payment UI. Not an error, no order.
		return nil, nil

	case payment.ResultFailed:
		s.LastError = "payment failed, please try again"
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, result.Err)

	default:
		return nil, fmt.Errorf("unknown payment result kind %d", result.Kind)
	}
}

// recoverLateCapture handles a confirmed charge whose pending intent was
// already expired by the janitor. The session still carries the snapshot and
// shipping info, so the order is recorded as if the capture were on time;
// only when that fails does this degrade to the reconciliation notice.
func (o *Orchestrator) recoverLateCapture(ctx context.Context, s *Session, paymentRef string) (*domain.Order, error) {
	s.UpdatedAt = time.Now()

	order, err := o.persistOrder(ctx, s, domain.PaymentMethodGateway, paymentRef)
	if err != nil {
		o.recordReconciliationGap(s, paymentRef, err)
		s.LastError = "payment succeeded but the order could not be recorded, contact support"
		return nil, fmt.Errorf("%w (payment ref %s): %v", ErrPaymentNotRecorded, paymentRef, err)
	}

	log.Printf("late payment capture recovered for session %v, ref %v", s.ID, paymentRef)
	o.finishPlacement(ctx, s, order)
	return order, nil
}

func (o *Orchestrator) persistOrder(ctx context.Context, s *Session, method domain.PaymentMethod, paymentRef string) (*domain.Order, error) {
	quote := o.pricing.Quote(s.Items)

	order := &domain.Order{
		ID:            uuid.New(),
		OwnerKey:      s.Owner.Key(),
		Items:         s.Items,
		Shipping:      s.Shipping,
		PaymentMethod: method,
		PaymentRef:    paymentRef,
		TotalAmount:   quote.Total,
		Currency:      o.currency,
		Status:        domain.OrderStatusPending,
	}

	if err := o.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// finishPlacement transitions the session to placed and clears the purchased
// cart. Buy-now sessions never touch the persisted cart.
func (o *Orchestrator) finishPlacement(ctx context.Context, s *Session, order *domain.Order) {
	s.Order = order
	s.Step = StepPlaced
	s.LastError = ""
	s.UpdatedAt = time.Now()

	if !s.BuyNow {
		if err := o.carts.Clear(ctx, s.Owner); err != nil {
			log.Printf("failed to clear cart after placement: %v", err)
		}
	}
}

func (o *Orchestrator) recordReconciliationGap(s *Session, paymentRef string, cause error) {
	payload := fmt.Sprintf(
		`{"session_id":%q,"owner_key":%q,"payment_ref":%q,"amount":%v,"currency":%q,"cause":%q}`,
		s.ID, s.Owner.Key(), paymentRef, o.pricing.Quote(s.Items).Total, o.currency, cause.Error(),
	)

	// Best effort: the same store that just failed may reject this too.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.orders.EnqueueEvent(ctx, s.ID, "order.reconciliation_needed", []byte(payload)); err != nil {
		log.Printf("RECONCILIATION NEEDED, could not enqueue notice: session=%v payment_ref=%v err=%v", s.ID, paymentRef, err)
	}
}
