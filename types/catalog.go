package types

import "github.com/shopspring/decimal"

// PricingListingItem is a priced item offered by a seller.
type PricingListingItem struct {
	Name        string                 `json:"name" validate:"required"`
	Description string                 `json:"description" validate:"required"`
	Price       decimal.Decimal        `json:"price"`
	Currency    string                 `json:"currency" validate:"required"`
	Params      map[string]interface{} `json:"params,omitempty"`
}

type PricingListingRequest struct {
	SearchQuery string `json:"searchQuery,omitempty"`
}

type PricingListingResponse struct {
	Items []PricingListingItem `json:"items"`
}

// PaymentMethodResponse advertises a method and the seller account receiving it.
type PaymentMethodResponse struct {
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	SellerAccountID string        `json:"sellerAccountId"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
}

// PurchaseRequest carries the buyer's proof of payment. SignedTransaction is
// either a transaction hash or an x402 payment header.
type PurchaseRequest struct {
	Items             []PricingListingItem `json:"items" validate:"required,min=1,dive"`
	TotalPrice        decimal.Decimal      `json:"totalPrice"`
	BuyerAccountID    string               `json:"buyerAccountId,omitempty"`
	SignedTransaction string               `json:"signedTransaction" validate:"required"`
	PaymentMethod     PaymentMethod        `json:"paymentMethod" validate:"required,paymentmethod"`
}

type PurchaseResponse struct {
	Items           []PricingListingItem `json:"items"`
	PurchaseRequest PurchaseRequest      `json:"purchaseRequest"`
	OrderID         string               `json:"orderId"`
	ToolResult      string               `json:"toolResult"`
	Verification    *VerificationResult  `json:"verification,omitempty"`
}
