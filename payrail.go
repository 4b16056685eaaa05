// Package payrail issues and verifies payments across EVM chains and Solana,
// and verifies and settles x402 transfer authorizations through a facilitator.
package payrail

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payrail/clients"
	"github.com/vitwit/payrail/config"
	"github.com/vitwit/payrail/issuance"
	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/merchant"
	"github.com/vitwit/payrail/metrics"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/settlement"
	"github.com/vitwit/payrail/types"
	"github.com/vitwit/payrail/verification"
)

// Version information
const (
	Version         = "0.3.0"
	ProtocolVersion = int(types.X402Version1)
)

// Payrail wires the registry, chain clients, issuer, verifiers and merchant
// store together.
type Payrail struct {
	cfg      *config.Config
	registry *registry.Registry
	pool     *clients.Pool

	issuer         *issuance.Issuer
	receipts       *verification.ReceiptVerifier
	facilitator    *settlement.Facilitator
	authorizations *settlement.AuthorizationBuilder
	verifier       *verification.VerificationService
	store          *merchant.Store

	buyerKey *ecdsa.PrivateKey

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	httpClient *http.Client
	evmDialer  clients.EVMDialer
	solDialer  clients.SolanaDialer
	fulfiller  merchant.Fulfiller
}

// New builds a Payrail from cfg. Keys are parsed here; chain connections
// are opened lazily on first use.
func New(cfg *config.Config, opts ...Option) (*Payrail, error) {
	if cfg == nil {
		return nil, &types.PaymentError{Code: types.ErrConfigError, Message: "config is required"}
	}
	timeouts := cfg.Timeouts.WithDefaults()

	p := &Payrail{
		cfg:     cfg,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: timeouts.Verification,
	}
	for _, opt := range opts {
		opt(p)
	}

	overrides, err := cfg.RegistryOverrides()
	if err != nil {
		return nil, err
	}
	p.registry = registry.New(overrides)

	p.pool = clients.NewPool(p.registry,
		clients.WithTimeout(timeouts.RPC),
		clients.WithLogger(p.logger))
	if p.evmDialer != nil || p.solDialer != nil {
		p.pool.SetDialers(p.evmDialer, p.solDialer)
	}

	evmKey, err := cfg.EVMKey()
	if err != nil {
		return nil, err
	}
	solKey, err := cfg.SolanaKey()
	if err != nil {
		return nil, err
	}
	if p.buyerKey, err = cfg.BuyerKey(); err != nil {
		return nil, err
	}

	p.issuer = issuance.New(p.registry, p.pool,
		issuance.WithEVMKey(evmKey),
		issuance.WithSolanaKey(solKey),
		issuance.WithOrderMetadata(cfg.Issuance.EmbedOrderMetadata),
		issuance.WithLogger(p.logger),
		issuance.WithMetrics(p.metrics))

	p.receipts = verification.NewReceiptVerifier(p.registry, p.pool,
		verification.WithLogger(p.logger),
		verification.WithMetrics(p.metrics))

	facilitatorOpts := []settlement.Option{
		settlement.WithDefaultURL(cfg.Facilitator.URL),
		settlement.WithTimeout(timeouts.Facilitator),
		settlement.WithLogger(p.logger),
		settlement.WithMetrics(p.metrics),
		settlement.WithHTTPClient(p.httpClient),
	}
	if cfg.Facilitator.DefaultMethod != "" {
		facilitatorOpts = append(facilitatorOpts,
			settlement.WithDefaultMethod(types.PaymentMethod(cfg.Facilitator.DefaultMethod)))
	}
	p.facilitator = settlement.NewFacilitator(p.registry, facilitatorOpts...)
	p.authorizations = settlement.NewAuthorizationBuilder(p.registry)

	p.verifier = verification.NewVerificationService(p.receipts, p.facilitator,
		verification.WithTimeout(p.timeout),
		verification.WithLogger(p.logger))

	p.store = merchant.NewStore(cfg.Merchant.Catalog, p.verifier,
		merchant.WithResource(cfg.Merchant.Resource),
		merchant.WithFacilitatorURL(cfg.Facilitator.URL),
		merchant.WithFulfiller(p.fulfiller),
		merchant.WithLogger(p.logger))

	return p, nil
}

// Issue sends a payment with the configured issuer key.
func (p *Payrail) Issue(ctx context.Context, req types.PaymentRequest) *types.IssuedPayment {
	return p.issuer.Issue(ctx, req)
}

// Verify verifies a payment by transaction hash or authorization header.
func (p *Payrail) Verify(ctx context.Context, req *types.VerificationRequest) *types.VerificationResult {
	return p.verifier.Verify(ctx, req)
}

// BatchVerify verifies multiple payments concurrently
func (p *Payrail) BatchVerify(ctx context.Context, reqs []*types.VerificationRequest) ([]*types.VerificationResult, error) {
	if len(reqs) == 0 {
		return nil, &types.PaymentError{
			Code:    types.ErrMissingField,
			Message: "at least one verification request is required",
		}
	}
	return p.verifier.BatchVerify(ctx, reqs)
}

// VerifyAndSettle runs the facilitator flow for a payment header.
func (p *Payrail) VerifyAndSettle(ctx context.Context, amount, payee, header, resource string, method types.PaymentMethod, facilitatorURL string) *types.VerificationResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.facilitator.VerifyAndSettle(ctx, amount, payee, header, resource, method, facilitatorURL)
}

// BuildAuthorization signs a payment header with the configured buyer key.
func (p *Payrail) BuildAuthorization(amount decimal.Decimal, payee, resource string, method types.PaymentMethod) (*settlement.Authorization, error) {
	if p.buyerKey == nil {
		return nil, &types.PaymentError{Code: types.ErrConfigError, Message: "no buyer signing key configured"}
	}
	return p.authorizations.Build(amount, payee, resource, method, p.buyerKey)
}

// TransferEvents lists token transfers of method's asset from fromBlock on.
func (p *Payrail) TransferEvents(ctx context.Context, method types.PaymentMethod, fromBlock uint64, toBlock *uint64, filter clients.TransferFilter) ([]clients.TransferEvent, error) {
	res, err := p.registry.Resolve(method)
	if err != nil {
		return nil, err
	}
	if !res.Chain.IsEVM() || res.Currency.IsNative {
		return nil, &types.PaymentError{
			Code:    types.ErrUnknownMethod,
			Message: fmt.Sprintf("transfer events are only available for EVM tokens, not %s", method),
		}
	}
	client, err := p.pool.EVM(ctx, res.Chain)
	if err != nil {
		return nil, err
	}
	return client.TransferEvents(ctx, common.HexToAddress(res.Currency.Address), fromBlock, toBlock, filter)
}

func (p *Payrail) Merchant() merchant.Merchant {
	return p.store
}

func (p *Payrail) Registry() *registry.Registry {
	return p.registry
}

// IssuerAddress returns the EVM address payments are issued from.
func (p *Payrail) IssuerAddress() (common.Address, bool) {
	return p.issuer.EVMAddress()
}

// Close closes all client connections
func (p *Payrail) Close() {
	p.pool.Close()
}

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	methods := types.AllPaymentMethods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}
	return map[string]interface{}{
		"library_version":   Version,
		"protocol_version":  ProtocolVersion,
		"payment_methods":   names,
		"supported_schemes": []string{types.SchemeExact},
	}
}
