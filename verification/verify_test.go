package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payrail/types"
)

type recordingVerifier struct {
	mu    sync.Mutex
	name  string
	delay time.Duration
	seen  []string
}

func (r *recordingVerifier) Verify(ctx context.Context, req *types.VerificationRequest) *types.VerificationResult {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return types.Fail(types.StageVerification, "%s: %v", r.name, ctx.Err())
		}
	}
	r.mu.Lock()
	r.seen = append(r.seen, req.TransactionHash+req.AuthorizationHeader)
	r.mu.Unlock()
	return &types.VerificationResult{Success: true, Message: r.name + ":" + req.TransactionHash + req.AuthorizationHeader}
}

func TestVerificationService_DispatchByProofKind(t *testing.T) {
	receipts := &recordingVerifier{name: "receipt"}
	auths := &recordingVerifier{name: "auth"}
	svc := NewVerificationService(receipts, auths)

	tests := []struct {
		name string
		req  *types.VerificationRequest
		want string
	}{
		{"hash only", &types.VerificationRequest{TransactionHash: "0xabc"}, "receipt:0xabc"},
		{"header only", &types.VerificationRequest{AuthorizationHeader: "eyJ9"}, "auth:eyJ9"},
		{"header wins over hash", &types.VerificationRequest{TransactionHash: "0x1", AuthorizationHeader: "h"}, "auth:0x1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Verify(context.Background(), tt.req)
			require.NotNil(t, res)
			assert.Equal(t, tt.want, res.Message)
		})
	}
}

func TestVerificationService_MissingStrategy(t *testing.T) {
	svc := NewVerificationService(&recordingVerifier{name: "receipt"}, nil)

	res := svc.Verify(context.Background(), &types.VerificationRequest{AuthorizationHeader: "h"})
	assert.False(t, res.Success)
	assert.Equal(t, types.StageInput, res.Stage)
	assert.Contains(t, res.Message, "unsupported proof kind")

	res = svc.Verify(context.Background(), nil)
	assert.Equal(t, "No transaction hash provided", res.Message)
}

func TestVerificationService_Timeout(t *testing.T) {
	slow := &recordingVerifier{name: "slow", delay: time.Second}
	svc := NewVerificationService(slow, nil, WithTimeout(10*time.Millisecond))

	res := svc.Verify(context.Background(), &types.VerificationRequest{TransactionHash: "0x1"})
	assert.False(t, res.Success)
	assert.Equal(t, "slow: context deadline exceeded", res.Message)
}

func TestVerificationService_BatchVerifyKeepsOrder(t *testing.T) {
	svc := NewVerificationService(&recordingVerifier{name: "r"}, nil)

	reqs := []*types.VerificationRequest{
		{TransactionHash: "0x1"},
		{TransactionHash: "0x2"},
		{TransactionHash: "0x3"},
	}
	results, err := svc.BatchVerify(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, "r:"+reqs[i].TransactionHash, res.Message)
	}
}

type blockingVerifier struct {
	release chan struct{}
}

func (b *blockingVerifier) Verify(context.Context, *types.VerificationRequest) *types.VerificationResult {
	<-b.release
	return &types.VerificationResult{Success: true}
}

func TestVerificationService_BatchVerifyCancelled(t *testing.T) {
	blocked := &blockingVerifier{release: make(chan struct{})}
	defer close(blocked.release)
	svc := NewVerificationService(blocked, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.BatchVerify(ctx, []*types.VerificationRequest{{TransactionHash: "0x1"}})
	assert.ErrorIs(t, err, context.Canceled)
}
