package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// SchemeExact is the only x402 scheme the facilitator flow uses.
const SchemeExact = "exact"

// PaymentRequirements defines the requirements a seller accepts for payment.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network of the blockchain to send payment on (e.g., "base-sepolia").
	Network string `json:"network" validate:"required"`

	// Maximum amount required to pay for the resource in atomic units of the asset.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,numeric"`

	// URL of the resource to pay for.
	Resource string `json:"resource" validate:"required"`

	Description string `json:"description"`

	MimeType string `json:"mimeType"`

	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Seconds the authorization stays redeemable.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"gt=0"`

	// Address of the EIP-3009 compliant ERC20 contract.
	Asset string `json:"asset" validate:"required"`

	// EIP-712 domain name and version of the asset.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}

	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}

	if pr.MaxAmountRequired == "" {
		return fmt.Errorf("paymentRequirements.maxAmountRequired is required")
	}

	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}

	if pr.Asset == "" {
		return fmt.Errorf("paymentRequirements.asset is required")
	}

	if pr.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must be greater than 0")
	}

	return nil
}

// PaymentPayload is the decoded form of the X-PAYMENT header.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     ExactEVMPayload `json:"payload"`
}

// ExactEVMPayload carries a signed EIP-3009 authorization.
type ExactEVMPayload struct {
	Signature     string               `json:"signature"`
	Authorization EIP3009Authorization `json:"authorization"`
}

type EIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`       // uint256
	ValidAfter  string `json:"validAfter"`  // uint256 timestamp
	ValidBefore string `json:"validBefore"` // uint256 timestamp
	Nonce       string `json:"nonce"`       // bytes32
}

// FacilitatorRequest is the body posted to a facilitator's verify and settle endpoints.
type FacilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse represents the facilitator's verification result.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse represents the facilitator's settlement record.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// PaymentRequest is the input to issuance.
type PaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination" validate:"required"`
	Method      PaymentMethod   `json:"paymentMethod" validate:"required"`

	// Optional order metadata, recorded on-chain for auditability only.
	OrderID   string    `json:"orderId,omitempty"`
	OrderDate time.Time `json:"orderDate,omitempty"`
	Buyer     string    `json:"buyer,omitempty"`
}

// IssuedPayment is the result of issuance. TransactionHash is empty exactly
// when issuance failed.
type IssuedPayment struct {
	ResultMessage   string `json:"resultMessage"`
	TransactionHash string `json:"hash"`
	Retried         bool   `json:"retried,omitempty"`

	// PendingHash is set on failure when the submission was cut off in
	// transit and the signed transaction may still have been broadcast.
	PendingHash string `json:"pendingHash,omitempty"`

	// Err is the structured cause of a failure.
	Err error `json:"-"`
}

func (p *IssuedPayment) Succeeded() bool {
	return p.TransactionHash != ""
}

// ProofKind distinguishes the two ways a buyer can prove payment.
type ProofKind string

const (
	ProofTransactionHash ProofKind = "transaction_hash"
	ProofAuthorization   ProofKind = "authorization"
)

// VerificationRequest describes what a seller expects and the proof the buyer presented.
type VerificationRequest struct {
	TransactionHash     string        `json:"transactionHash,omitempty"`
	AuthorizationHeader string        `json:"authorizationHeader,omitempty"`
	ExpectedAmount      string        `json:"amount"`
	ExpectedDestination string        `json:"destination"`
	Method              PaymentMethod `json:"paymentMethod"`

	// Facilitator flow only.
	Resource       string `json:"resource,omitempty"`
	FacilitatorURL string `json:"facilitatorUrl,omitempty"`
}

// ProofKind reports which verification strategy applies. An authorization
// header takes precedence over a hash.
func (r *VerificationRequest) ProofKind() ProofKind {
	if r.AuthorizationHeader != "" {
		return ProofAuthorization
	}
	return ProofTransactionHash
}

// VerificationStage records where a verification stopped.
type VerificationStage string

const (
	StageInput        VerificationStage = "input"
	StageVerification VerificationStage = "verification"
	StageSettlement   VerificationStage = "settlement"
	StageComplete     VerificationStage = "complete"
)

// VerificationResult is returned by every verification strategy.
type VerificationResult struct {
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	ExplorerURL    string            `json:"blockChainExplorerUrl,omitempty"`
	ChainName      string            `json:"blockChainName,omitempty"`
	ResponseHeader string            `json:"responseHeader,omitempty"`
	Stage          VerificationStage `json:"stage,omitempty"`

	// Retryable is set when the proof is still valid but redemption failed.
	Retryable bool `json:"retryable,omitempty"`
}

// Fail builds a failed result.
func Fail(stage VerificationStage, format string, args ...any) *VerificationResult {
	return &VerificationResult{
		Success: false,
		Message: fmt.Sprintf(format, args...),
		Stage:   stage,
	}
}
