// Package merchant exposes a seller's catalog and turns verified payments into
// completed purchases.
package merchant

import (
	"context"

	"github.com/vitwit/payrail/types"
)

// Merchant is the buyer-facing surface of a seller.
type Merchant interface {
	PricingListing(ctx context.Context, req types.PricingListingRequest) (*types.PricingListingResponse, error)
	PaymentMethods(ctx context.Context) ([]types.PaymentMethodResponse, error)
	MakePurchase(ctx context.Context, req types.PurchaseRequest) (*types.PurchaseResponse, error)
}

// Fulfiller produces the result of a paid purchase.
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID string, items []types.PricingListingItem) (string, error)
}

// FulfillerFunc adapts a function to Fulfiller.
type FulfillerFunc func(ctx context.Context, orderID string, items []types.PricingListingItem) (string, error)

func (f FulfillerFunc) Fulfill(ctx context.Context, orderID string, items []types.PricingListingItem) (string, error) {
	return f(ctx, orderID, items)
}

// Catalog is what a seller offers and how it accepts payment.
type Catalog struct {
	Items   []types.PricingListingItem    `mapstructure:"items" json:"items"`
	Methods []types.PaymentMethodResponse `mapstructure:"methods" json:"methods"`
}
