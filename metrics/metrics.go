package metrics

import "time"

// Event names shared by the recorders' callers.
const (
	EventIssued             = "payment_issued"
	EventIssueFailed        = "payment_issue_failed"
	EventNonceRetry         = "nonce_retry"
	EventVerified           = "payment_verified"
	EventVerificationFailed = "payment_verification_failed"
	EventSettled            = "payment_settled"
	EventSettlementFailed   = "payment_settlement_failed"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// ChainLabels builds the label set used by every recorder call.
func ChainLabels(chain string) map[string]string {
	return map[string]string{"chain": chain}
}
