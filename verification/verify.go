// Package verification decides whether a presented proof pays what a seller
// expects.
package verification

import (
	"context"
	"time"

	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/metrics"
	"github.com/vitwit/payrail/types"
)

// Verifier interface defines the contract for payment verification
type Verifier interface {
	Verify(ctx context.Context, req *types.VerificationRequest) *types.VerificationResult
}

type options struct {
	timeout time.Duration
	log     logger.Logger
	metrics metrics.Recorder
}

type Option func(*options)

// WithTimeout bounds a whole verification, including every call it makes.
func WithTimeout(t time.Duration) Option {
	return func(o *options) {
		if t > 0 {
			o.timeout = t
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		timeout: 30 * time.Second,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// VerificationService selects a verification strategy by the kind of proof
// presented: a transaction hash or a signed authorization header.
type VerificationService struct {
	receipts       Verifier
	authorizations Verifier
	timeout        time.Duration
	log            logger.Logger
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService creates a new verification service. authorizations
// may be nil when the facilitator flow is not offered.
func NewVerificationService(receipts, authorizations Verifier, opts ...Option) *VerificationService {
	o := buildOptions(opts)
	return &VerificationService{
		receipts:       receipts,
		authorizations: authorizations,
		timeout:        o.timeout,
		log:            o.log,
	}
}

// Verify verifies a payment against the seller's expectations
func (s *VerificationService) Verify(ctx context.Context, req *types.VerificationRequest) *types.VerificationResult {
	if req == nil {
		return types.Fail(types.StageInput, "No transaction hash provided")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var v Verifier
	switch req.ProofKind() {
	case types.ProofAuthorization:
		v = s.authorizations
	default:
		v = s.receipts
	}
	if v == nil {
		return types.Fail(types.StageInput, "unsupported proof kind: %s", req.ProofKind())
	}

	s.log.Debug("verifying payment", map[string]any{
		"proof":  req.ProofKind(),
		"method": req.Method,
	})
	return v.Verify(verifyCtx, req)
}

// BatchVerify verifies multiple payments concurrently. Results keep the order
// of reqs.
func (s *VerificationService) BatchVerify(ctx context.Context, reqs []*types.VerificationRequest) ([]*types.VerificationResult, error) {
	results := make([]*types.VerificationResult, len(reqs))

	type verificationResult struct {
		index  int
		result *types.VerificationResult
	}
	resultChan := make(chan verificationResult, len(reqs))

	for i, req := range reqs {
		go func(index int, r *types.VerificationRequest) {
			resultChan <- verificationResult{index: index, result: s.Verify(ctx, r)}
		}(i, req)
	}

	for i := 0; i < len(reqs); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-resultChan:
			results[res.index] = res.result
		}
	}
	return results, nil
}
