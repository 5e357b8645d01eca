package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// webhookPayload is the provider's callback body. Status maps onto the
// Result union: captured / dismissed / failed.
type webhookPayload struct {
	Status     string `json:"status"`
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason,omitempty"`
}

// ParseWebhook verifies the HMAC-SHA256 signature over the raw body and
// converts the payload into a Result.
func ParseWebhook(body []byte, signature, secret string) (Result, error) {
	if !verifySignature(body, signature, secret) {
		return Result{}, ErrBadSignature
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Result{}, fmt.Errorf("unmarshal webhook payload: %w", err)
	}

	switch p.Status {
	case "captured":
		if p.PaymentRef == "" {
			return Result{}, errors.New("captured webhook missing payment_ref")
		}
		return Completed(p.PaymentRef), nil
	case "dismissed":
		return Dismissed(), nil
	case "failed":
		return Failed(fmt.Errorf("gateway reported failure: %s", p.Reason)), nil
	default:
		return Result{}, fmt.Errorf("unknown webhook status %q", p.Status)
	}
}

func verifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
