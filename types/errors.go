package types

import "errors"

// PaymentError is the structured error carried across package boundaries.
type PaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrUnknownMethod      = "UNKNOWN_METHOD"
	ErrInvalidAmount      = "INVALID_AMOUNT"
	ErrMissingField       = "MISSING_FIELD"
	ErrUnsupportedChain   = "UNSUPPORTED_CHAIN"
	ErrMissingContract    = "MISSING_CONTRACT"
	ErrNetworkError       = "NETWORK_ERROR"
	ErrNonceTooLow        = "NONCE_TOO_LOW"
	ErrSubmissionFailed   = "SUBMISSION_FAILED"
	ErrNotFound           = "NOT_FOUND"
	ErrVerificationFailed = "VERIFICATION_FAILED"
	ErrSettlementFailed   = "SETTLEMENT_FAILED"
	ErrConfigError        = "CONFIG_ERROR"
)

// ErrorCode extracts the PaymentError code from err, or "" when err carries none.
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
