package merchant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/types"
	"github.com/vitwit/payrail/utils"
	"github.com/vitwit/payrail/verification"
)

// DefaultResource identifies purchases to a facilitator when none is configured.
const DefaultResource = "payrail://purchase"

type Option func(*Store)

func WithFulfiller(f Fulfiller) Option {
	return func(s *Store) {
		if f != nil {
			s.fulfiller = f
		}
	}
}

// WithResource sets the resource URL sent with facilitator verifications.
func WithResource(resource string) Option {
	return func(s *Store) {
		if resource != "" {
			s.resource = resource
		}
	}
}

func WithFacilitatorURL(url string) Option {
	return func(s *Store) { s.facilitatorURL = url }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store is a Merchant backed by a static catalog.
type Store struct {
	catalog  Catalog
	verifier verification.Verifier

	fulfiller      Fulfiller
	resource       string
	facilitatorURL string
	newOrderID     func() string
	log            logger.Logger

	// spent holds proofs that paid for an order or are being verified.
	// It lives as long as the store.
	mu    sync.Mutex
	spent map[string]struct{}
}

var _ Merchant = (*Store)(nil)

func NewStore(catalog Catalog, verifier verification.Verifier, opts ...Option) *Store {
	s := &Store{
		catalog:    catalog,
		verifier:   verifier,
		fulfiller:  FulfillerFunc(receipt),
		resource:   DefaultResource,
		newOrderID: uuid.NewString,
		log:        logger.NoopLogger{},
		spent:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PricingListing returns catalog items whose name or description contains
// the search query, ignoring case. An empty query lists everything.
func (s *Store) PricingListing(_ context.Context, req types.PricingListingRequest) (*types.PricingListingResponse, error) {
	query := strings.ToLower(strings.TrimSpace(req.SearchQuery))

	items := make([]types.PricingListingItem, 0, len(s.catalog.Items))
	for _, item := range s.catalog.Items {
		if query == "" ||
			strings.Contains(strings.ToLower(item.Name), query) ||
			strings.Contains(strings.ToLower(item.Description), query) {
			items = append(items, item)
		}
	}
	return &types.PricingListingResponse{Items: items}, nil
}

func (s *Store) PaymentMethods(context.Context) ([]types.PaymentMethodResponse, error) {
	out := make([]types.PaymentMethodResponse, len(s.catalog.Methods))
	copy(out, s.catalog.Methods)
	return out, nil
}

// MakePurchase validates the order against the catalog, verifies the
// presented payment and fulfils the order.
func (s *Store) MakePurchase(ctx context.Context, req types.PurchaseRequest) (*types.PurchaseResponse, error) {
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	method, ok := s.method(req.PaymentMethod)
	if !ok {
		return nil, &types.PaymentError{
			Code:    types.ErrUnknownMethod,
			Message: fmt.Sprintf("payment method %s is not accepted", req.PaymentMethod),
		}
	}

	total := decimal.Zero
	for _, item := range req.Items {
		listed, ok := s.item(item.Name)
		if !ok {
			return nil, &types.PaymentError{
				Code:    types.ErrMissingField,
				Message: fmt.Sprintf("unknown item: %s", item.Name),
			}
		}
		if !listed.Price.Equal(item.Price) {
			return nil, &types.PaymentError{
				Code:    types.ErrInvalidAmount,
				Message: fmt.Sprintf("price of %s is %s, got %s", listed.Name, listed.Price, item.Price),
			}
		}
		total = total.Add(listed.Price)
	}
	if !total.Equal(req.TotalPrice) {
		return nil, &types.PaymentError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("total price %s does not match the sum of item prices %s", req.TotalPrice, total),
		}
	}

	vreq := &types.VerificationRequest{
		ExpectedAmount:      req.TotalPrice.String(),
		ExpectedDestination: method.SellerAccountID,
		Method:              req.PaymentMethod,
		Resource:            s.resource,
		FacilitatorURL:      s.facilitatorURL,
	}
	if looksLikeTransactionHash(req.SignedTransaction, req.PaymentMethod) {
		vreq.TransactionHash = req.SignedTransaction
	} else {
		vreq.AuthorizationHeader = req.SignedTransaction
	}

	key := proofKey(vreq)
	if !s.claim(key) {
		s.log.Warn("payment proof reused", map[string]any{
			"method": req.PaymentMethod,
			"proof":  vreq.ProofKind(),
		})
		return nil, &types.PaymentError{
			Code:    types.ErrVerificationFailed,
			Message: "payment proof has already been used",
		}
	}

	result := s.verifier.Verify(ctx, vreq)
	if !result.Success {
		s.release(key)
		code := types.ErrVerificationFailed
		if result.Stage == types.StageSettlement {
			code = types.ErrSettlementFailed
		}
		s.log.Info("purchase rejected", map[string]any{
			"method": req.PaymentMethod,
			"proof":  vreq.ProofKind(),
			"reason": result.Message,
		})
		return nil, &PurchaseError{
			PaymentError: types.PaymentError{Code: code, Message: result.Message},
			Result:       result,
		}
	}

	orderID := s.newOrderID()
	toolResult, err := s.fulfiller.Fulfill(ctx, orderID, req.Items)
	if err != nil {
		s.log.Error("fulfilment failed after payment", map[string]any{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("order %s paid but not fulfilled: %w", orderID, err)
	}

	s.log.Info("purchase completed", map[string]any{
		"order_id": orderID,
		"method":   req.PaymentMethod,
		"total":    req.TotalPrice.String(),
	})
	return &types.PurchaseResponse{
		Items:           req.Items,
		PurchaseRequest: req,
		OrderID:         orderID,
		ToolResult:      toolResult,
		Verification:    result,
	}, nil
}

// PurchaseError is returned when the presented payment does not verify.
type PurchaseError struct {
	types.PaymentError
	Result *types.VerificationResult
}

func (e *PurchaseError) Unwrap() error {
	return &e.PaymentError
}

// AsPurchaseError reports whether err carries a rejected verification.
func AsPurchaseError(err error) (*PurchaseError, bool) {
	var pe *PurchaseError
	ok := errors.As(err, &pe)
	return pe, ok
}

func (s *Store) method(m types.PaymentMethod) (types.PaymentMethodResponse, bool) {
	for _, pm := range s.catalog.Methods {
		if pm.PaymentMethod == m {
			return pm, true
		}
	}
	return types.PaymentMethodResponse{}, false
}

func (s *Store) item(name string) (types.PricingListingItem, bool) {
	for _, it := range s.catalog.Items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return types.PricingListingItem{}, false
}

// claim marks a proof as spent. It reports false when the proof was already
// claimed.
func (s *Store) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spent[key]; ok {
		return false
	}
	s.spent[key] = struct{}{}
	return true
}

func (s *Store) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spent, key)
}

// proofKey identifies a proof across spellings. EVM hashes are hex and
// compared case-insensitively.
func proofKey(req *types.VerificationRequest) string {
	if req.TransactionHash == "" {
		return string(types.ProofAuthorization) + ":" + req.AuthorizationHeader
	}
	hash := req.TransactionHash
	if chain, _, err := registry.ResolveMethod(req.Method); err == nil && chain.IsEVM() {
		hash = strings.ToLower(hash)
	}
	return string(types.ProofTransactionHash) + ":" + hash
}

func looksLikeTransactionHash(proof string, method types.PaymentMethod) bool {
	chain, _, err := registry.ResolveMethod(method)
	if err != nil {
		return false
	}
	return utils.ValidateTransactionHash(proof, chain) == nil
}

func receipt(_ context.Context, orderID string, items []types.PricingListingItem) (string, error) {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	data, err := json.Marshal(map[string]any{
		"orderId": orderID,
		"items":   names,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
