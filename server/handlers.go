package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payrail"
	"github.com/vitwit/payrail/types"
	"github.com/vitwit/payrail/utils"
)

const (
	// PaymentHeader carries an x402 payment header when the body omits it.
	PaymentHeader = "X-Payment"
	// PaymentResponseHeader carries the facilitator's settlement receipt.
	PaymentResponseHeader = "X-Payment-Response"
)

var _ Service = (*payrail.Payrail)(nil)

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	data := payrail.GetVersion()
	data["status"] = "ok"
	if err := jsonResponse(w, http.StatusOK, data); err != nil {
		s.internalServerError(w, r, err)
	}
}

func (s *Server) paymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	methods, err := s.svc.Merchant().PaymentMethods(r.Context())
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	_ = jsonResponse(w, http.StatusOK, methods)
}

func (s *Server) pricingListingHandler(w http.ResponseWriter, r *http.Request) {
	var payload types.PricingListingRequest
	if err := readJSON(w, r, &payload); err != nil && !errors.Is(err, io.EOF) {
		s.badRequestResponse(w, r, err)
		return
	}

	listing, err := s.svc.Merchant().PricingListing(r.Context(), payload)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	_ = jsonResponse(w, http.StatusOK, listing)
}

func (s *Server) purchaseHandler(w http.ResponseWriter, r *http.Request) {
	var payload types.PurchaseRequest
	if err := readJSON(w, r, &payload); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	if payload.SignedTransaction == "" {
		payload.SignedTransaction = r.Header.Get(PaymentHeader)
	}

	purchase, err := s.svc.Merchant().MakePurchase(r.Context(), payload)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if v := purchase.Verification; v != nil && v.ResponseHeader != "" {
		w.Header().Set(PaymentResponseHeader, v.ResponseHeader)
	}
	_ = jsonResponse(w, http.StatusOK, purchase)
}

func (s *Server) issueHandler(w http.ResponseWriter, r *http.Request) {
	var payload types.PaymentRequest
	if err := readJSON(w, r, &payload); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	if err := utils.Validate(&payload); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	issued := s.svc.Issue(r.Context(), payload)
	if !issued.Succeeded() {
		code := types.ErrorCode(issued.Err)
		if code == "" {
			code = types.ErrSubmissionFailed
		}
		s.errorResponseWithResult(w, r, &types.PaymentError{
			Code:    code,
			Message: issued.ResultMessage,
			Err:     issued.Err,
		}, issued)
		return
	}
	_ = jsonResponse(w, http.StatusOK, issued)
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	var payload types.VerificationRequest
	if err := readJSON(w, r, &payload); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	if payload.AuthorizationHeader == "" {
		payload.AuthorizationHeader = r.Header.Get(PaymentHeader)
	}
	payload.FacilitatorURL = ""

	result := s.svc.Verify(r.Context(), &payload)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusPaymentRequired
	}
	if result.ResponseHeader != "" {
		w.Header().Set(PaymentResponseHeader, result.ResponseHeader)
	}
	_ = jsonResponse(w, status, result)
}

func (s *Server) batchVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Requests []*types.VerificationRequest `json:"requests"`
	}
	if err := readJSON(w, r, &payload); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	for _, req := range payload.Requests {
		if req == nil {
			s.badRequestResponse(w, r, errors.New("verification request must not be null"))
			return
		}
		req.FacilitatorURL = ""
	}

	results, err := s.svc.BatchVerify(r.Context(), payload.Requests)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	_ = jsonResponse(w, http.StatusOK, results)
}

type authorizeRequest struct {
	Amount        decimal.Decimal     `json:"amount"`
	Payee         string              `json:"payee" validate:"required"`
	Resource      string              `json:"resource" validate:"required"`
	PaymentMethod types.PaymentMethod `json:"paymentMethod" validate:"required,paymentmethod"`
}

type authorizeResponse struct {
	Header       string                    `json:"header"`
	Payload      types.PaymentPayload      `json:"payload"`
	Requirements types.PaymentRequirements `json:"requirements"`
}

func (s *Server) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	var payload authorizeRequest
	if err := readJSON(w, r, &payload); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	if err := utils.Validate(&payload); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	auth, err := s.svc.BuildAuthorization(payload.Amount, payload.Payee, payload.Resource, payload.PaymentMethod)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	_ = jsonResponse(w, http.StatusOK, authorizeResponse{
		Header:       auth.Header,
		Payload:      auth.Payload,
		Requirements: auth.Requirements,
	})
}
