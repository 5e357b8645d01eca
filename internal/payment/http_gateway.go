package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HTTPGateway talks to the payment provider's REST API. All calls go through
// a circuit breaker so a flapping provider fails fast instead of tying up
// checkout handlers.
type HTTPGateway struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Intent]
}

func NewHTTPGateway(baseURL, keyID, secret string, timeout time.Duration) *HTTPGateway {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &HTTPGateway{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*Intent](settings),
	}
}

type createIntentRequest struct {
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type createIntentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, amount float64, currency string) (*Intent, error) {
	intent, err := g.breaker.Execute(func() (*Intent, error) {
		return g.createIntent(ctx, amount, currency)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	return intent, nil
}

func (g *HTTPGateway) createIntent(ctx context.Context, amount float64, currency string) (*Intent, error) {
	body, err := json.Marshal(createIntentRequest{
		AmountMinor: toMinorUnits(amount),
		Currency:    currency,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal intent request: %w", err)
	}

	url := g.baseURL + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.secret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var out createIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}
	if out.ID == "" {
		return nil, errors.New("gateway returned empty intent id")
	}

	return &Intent{
		Token:    out.ID,
		Amount:   amount,
		Currency: currency,
	}, nil
}

// toMinorUnits converts a decimal amount to currency minor units with
// consistent half-up rounding.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
