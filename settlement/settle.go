// Package settlement implements the authorization flow: buyers sign EIP-3009
// transfer authorizations and sellers verify and settle them through an x402
// facilitator.
package settlement

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/metrics"
	"github.com/vitwit/payrail/registry"
	"github.com/vitwit/payrail/types"
	"github.com/vitwit/payrail/utils"
)

// Option configures a Facilitator.
type Option func(*Facilitator)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Facilitator) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithDefaultURL sets the facilitator used when a request names none.
func WithDefaultURL(url string) Option {
	return func(f *Facilitator) {
		if url != "" {
			f.defaultURL = url
		}
	}
}

// WithDefaultMethod sets the payment method assumed when a request names none.
func WithDefaultMethod(m types.PaymentMethod) Option {
	return func(f *Facilitator) {
		if m != "" {
			f.defaultMethod = m
		}
	}
}

func WithTimeout(t time.Duration) Option {
	return func(f *Facilitator) {
		if t > 0 {
			f.timeout = t
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(f *Facilitator) {
		if l != nil {
			f.log = l
		}
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(f *Facilitator) {
		if m != nil {
			f.metrics = m
		}
	}
}

// Facilitator verifies payment headers with a facilitator and settles the
// valid ones.
type Facilitator struct {
	registry      *registry.Registry
	httpClient    *http.Client
	defaultURL    string
	defaultMethod types.PaymentMethod
	timeout       time.Duration
	log           logger.Logger
	metrics       metrics.Recorder
}

func NewFacilitator(reg *registry.Registry, opts ...Option) *Facilitator {
	f := &Facilitator{
		registry:      reg,
		httpClient:    http.DefaultClient,
		defaultURL:    DefaultFacilitatorURL,
		defaultMethod: types.MethodUSDCBaseSepolia,
		timeout:       30 * time.Second,
		log:           logger.NoopLogger{},
		metrics:       metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Verify adapts VerifyAndSettle to the verification service.
func (f *Facilitator) Verify(ctx context.Context, req *types.VerificationRequest) *types.VerificationResult {
	if req == nil {
		return types.Fail(types.StageInput, "No payment header found")
	}
	return f.VerifyAndSettle(ctx, req.ExpectedAmount, req.ExpectedDestination, req.AuthorizationHeader,
		req.Resource, req.Method, req.FacilitatorURL)
}

// VerifyAndSettle checks header against the seller's price and settles it.
// Settlement is only attempted after the facilitator reports the payment
// valid. The result is never nil.
func (f *Facilitator) VerifyAndSettle(ctx context.Context, amount, payee, header, resource string, method types.PaymentMethod, facilitatorURL string) *types.VerificationResult {
	price, err := utils.ParseMoney(amount)
	if err != nil {
		return types.Fail(types.StageInput, "%s", err.Error())
	}
	if header == "" {
		return types.Fail(types.StageInput, "No payment header found")
	}
	if method == "" {
		method = f.defaultMethod
	}
	if facilitatorURL == "" {
		facilitatorURL = f.defaultURL
	}

	res, err := resolveAuthorizable(f.registry, method)
	if err != nil {
		return types.Fail(types.StageInput, "Error: %s", err.Error())
	}
	labels := metrics.ChainLabels(res.Chain.String())

	units, err := types.ToSmallestUnits(price, res.Currency.Decimals)
	if err != nil {
		return types.Fail(types.StageInput, "Error: %s", err.Error())
	}

	requirements := requirementsFor(res, units, payee, resource)
	if err := requirements.Validate(); err != nil {
		return types.Fail(types.StageInput, "Error: %s", err.Error())
	}

	payment, err := DecodePayment(header)
	if err != nil {
		f.metrics.IncCounter(metrics.EventVerificationFailed, labels)
		return types.Fail(types.StageVerification, "Error during payment verification: invalid payment header: %s", err.Error())
	}

	client := NewFacilitatorClient(facilitatorURL, f.httpClient, f.timeout)

	start := time.Now()
	verified, err := client.Verify(ctx, payment, requirements)
	f.metrics.ObserveLatency("facilitator_verify", time.Since(start), labels)
	if err != nil {
		f.metrics.IncCounter(metrics.EventVerificationFailed, labels)
		f.log.Error("Error during payment verification", map[string]any{
			"facilitator": client.BaseURL,
			"error":       err.Error(),
		})
		return types.Fail(types.StageVerification, "Error during payment verification: %s", err.Error())
	}
	if !verified.IsValid {
		f.metrics.IncCounter(metrics.EventVerificationFailed, labels)
		f.log.Info("invalid payment", map[string]any{
			"reason": verified.InvalidReason,
			"payer":  verified.Payer,
		})
		return types.Fail(types.StageVerification, "%s", verified.InvalidReason)
	}
	f.metrics.IncCounter(metrics.EventVerified, labels)

	start = time.Now()
	settled, err := client.Settle(ctx, payment, requirements)
	f.metrics.ObserveLatency("facilitator_settle", time.Since(start), labels)
	if err == nil && !settled.Success {
		reason := settled.ErrorReason
		if reason == "" {
			reason = "facilitator reported failure"
		}
		err = errors.New(reason)
	}
	if err != nil {
		f.metrics.IncCounter(metrics.EventSettlementFailed, labels)
		f.log.Error("Settlement failed", map[string]any{
			"facilitator": client.BaseURL,
			"error":       err.Error(),
		})
		out := types.Fail(types.StageSettlement, "Settlement failed: %s", err.Error())
		out.Retryable = true
		return out
	}

	responseHeader, err := EncodeSettlement(*settled)
	if err != nil {
		out := types.Fail(types.StageSettlement, "Settlement failed: %s", err.Error())
		out.Retryable = true
		return out
	}
	f.metrics.IncCounter(metrics.EventSettled, labels)

	out := &types.VerificationResult{
		Success:        true,
		Message:        "Payment settled successfully",
		ResponseHeader: responseHeader,
		ChainName:      res.Chain.String(),
		Stage:          types.StageComplete,
	}
	if settled.Transaction != "" {
		out.ExplorerURL = f.registry.ExplorerURL(res.Chain, settled.Transaction)
	}
	return out
}
