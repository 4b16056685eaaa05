package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitwit/payrail/types"
)

// DefaultFacilitatorURL is the public x402 facilitator.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// ErrFacilitatorUnavailable wraps transport failures talking to a facilitator.
var ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

// StatusError is returned when a facilitator answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *StatusError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("facilitator returned status %d: %s", e.StatusCode, e.Reason)
	case e.Body != "":
		return fmt.Sprintf("facilitator returned status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("facilitator returned status %d", e.StatusCode)
	}
}

// FacilitatorClient talks to an x402 facilitator's verify and settle endpoints.
type FacilitatorClient struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

func NewFacilitatorClient(baseURL string, client *http.Client, timeout time.Duration) *FacilitatorClient {
	if baseURL == "" {
		baseURL = DefaultFacilitatorURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &FacilitatorClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Timeout: timeout,
	}
}

// Verify asks the facilitator whether payment satisfies requirements without
// moving funds.
func (c *FacilitatorClient) Verify(ctx context.Context, payment types.PaymentPayload, requirements types.PaymentRequirements) (*types.VerifyResponse, error) {
	var resp types.VerifyResponse
	if err := c.post(ctx, "/verify", payment, requirements, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle asks the facilitator to execute a verified authorization on chain.
func (c *FacilitatorClient) Settle(ctx context.Context, payment types.PaymentPayload, requirements types.PaymentRequirements) (*types.SettleResponse, error) {
	var resp types.SettleResponse
	if err := c.post(ctx, "/settle", payment, requirements, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path string, payment types.PaymentPayload, requirements types.PaymentRequirements, out any) error {
	data, err := json.Marshal(types.FacilitatorRequest{
		X402Version:         int(types.X402Version1),
		PaymentPayload:      payment,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrFacilitatorUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode}
		var reason struct {
			InvalidReason string `json:"invalidReason"`
			ErrorReason   string `json:"errorReason"`
			Error         string `json:"error"`
		}
		if json.Unmarshal(body, &reason) == nil {
			switch {
			case reason.InvalidReason != "":
				se.Reason = reason.InvalidReason
			case reason.ErrorReason != "":
				se.Reason = reason.ErrorReason
			default:
				se.Reason = reason.Error
			}
		}
		if se.Reason == "" && len(body) > 0 && len(body) < 500 {
			se.Body = strings.TrimSpace(string(body))
		}
		return se
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", strings.TrimPrefix(path, "/"), err)
	}
	return nil
}
