package payment

import (
	"context"
	"errors"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Intent is a gateway-side payment order awaiting capture in the external
// payment UI.
type Intent struct {
	Token    string  `json:"token"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Gateway is the narrow contract the checkout flow needs from the payment
// provider. Capture happens in the provider's own UI; its outcome arrives
// back as a Result.
type Gateway interface {
	CreateIntent(ctx context.Context, amount float64, currency string) (*Intent, error)
}

// ResultKind tags the three possible outcomes of the gateway interaction.
type ResultKind int

const (
	// ResultCompleted: the charge went through, Reference carries the
	// gateway's payment reference.
	ResultCompleted ResultKind = iota
	// ResultDismissed: the user closed the payment UI without paying.
	ResultDismissed
	// ResultFailed: the gateway reported an error before any charge.
	ResultFailed
)

// Result folds the provider's success/dismiss/error callbacks into one tagged
// value so transition logic can be a single exhaustive switch.
type Result struct {
	Kind      ResultKind
	Reference string
	Err       error
}

func Completed(reference string) Result {
	return Result{Kind: ResultCompleted, Reference: reference}
}

func Dismissed() Result {
	return Result{Kind: ResultDismissed}
}

func Failed(err error) Result {
	return Result{Kind: ResultFailed, Err: err}
}
