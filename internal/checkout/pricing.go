package checkout

import "github.com/trendora/storefront/internal/domain"

// Quote is the priced breakdown of a checkout session.
type Quote struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// PricingStrategy computes shipping and tax on top of the item subtotal.
// Whether those should stay zero is a product decision, so the computation
// is a seam rather than a constant.
type PricingStrategy interface {
	Quote(items []domain.OrderItem) Quote
}

// FlatZeroPricing charges no shipping and no tax: total equals subtotal.
type FlatZeroPricing struct{}

func (FlatZeroPricing) Quote(items []domain.OrderItem) Quote {
	subtotal := sumItems(items)
	return Quote{Subtotal: subtotal, Total: subtotal}
}

// FlatFeePricing adds a fixed shipping fee to every order.
type FlatFeePricing struct {
	Fee float64
}

func (p FlatFeePricing) Quote(items []domain.OrderItem) Quote {
	subtotal := sumItems(items)
	return Quote{
		Subtotal: subtotal,
		Shipping: p.Fee,
		Total:    subtotal + p.Fee,
	}
}

func sumItems(items []domain.OrderItem) float64 {
	var subtotal float64
	for _, item := range items {
		subtotal += item.UnitPrice * float64(item.Quantity)
	}
	return subtotal
}
