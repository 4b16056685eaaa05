package issuance

import (
	"encoding/json"
	"time"

	"github.com/vitwit/payrail/types"
)

// OrderMetadata is recorded in native transfers for auditability. It plays no
// part in verification.
type OrderMetadata struct {
	OrderID   string `json:"orderId"`
	OrderDate string `json:"orderDate,omitempty"`
	Buyer     string `json:"buyer,omitempty"`
}

func metadataFor(req types.PaymentRequest) *OrderMetadata {
	if req.OrderID == "" {
		return nil
	}
	m := &OrderMetadata{OrderID: req.OrderID, Buyer: req.Buyer}
	if !req.OrderDate.IsZero() {
		m.OrderDate = req.OrderDate.UTC().Format(time.RFC3339)
	}
	return m
}

func (m *OrderMetadata) encode() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// DecodeOrderMetadata reads metadata back from native transaction data.
func DecodeOrderMetadata(data []byte) (*OrderMetadata, error) {
	var m OrderMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
