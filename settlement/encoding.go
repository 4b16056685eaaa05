package settlement

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/vitwit/payrail/types"
)

// EncodePayment converts a PaymentPayload to the base64 JSON form carried in
// payment headers.
func EncodePayment(payment types.PaymentPayload) (string, error) {
	data, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment parses a payment header.
func DecodePayment(header string) (types.PaymentPayload, error) {
	var payment types.PaymentPayload

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return payment, fmt.Errorf("failed to decode base64: %w", err)
	}
	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, fmt.Errorf("failed to unmarshal payment: %w", err)
	}
	if payment.X402Version != int(types.X402Version1) {
		return payment, fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}
	return payment, nil
}

// EncodeSettlement builds the settlement response header returned to the buyer.
func EncodeSettlement(settlement types.SettleResponse) (string, error) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func DecodeSettlement(header string) (types.SettleResponse, error) {
	var settlement types.SettleResponse

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return settlement, fmt.Errorf("failed to decode base64: %w", err)
	}
	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}
	return settlement, nil
}
