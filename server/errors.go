package server

import (
	"net/http"

	"github.com/vitwit/payrail/merchant"
	"github.com/vitwit/payrail/types"
)

// statusFor maps a PaymentError code to an HTTP status.
func statusFor(err error) int {
	switch types.ErrorCode(err) {
	case types.ErrUnknownMethod, types.ErrInvalidAmount, types.ErrMissingField,
		types.ErrUnsupportedChain, types.ErrMissingContract:
		return http.StatusBadRequest
	case types.ErrVerificationFailed, types.ErrSettlementFailed:
		return http.StatusPaymentRequired
	case types.ErrConfigError:
		return http.StatusServiceUnavailable
	case types.ErrNetworkError, types.ErrNonceTooLow, types.ErrSubmissionFailed, types.ErrNotFound:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("bad request", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err,
	})
	_ = writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("internal error", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err,
	})
	_ = writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (s *Server) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("unauthorized request", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err,
	})
	w.Header().Set("WWW-Authenticate", `Bearer realm="payrail"`)
	_ = writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

// errorResponse writes err with the status its code maps to. Rejected
// purchases carry their verification result.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var result any
	if pe, ok := merchant.AsPurchaseError(err); ok {
		result = pe.Result
	}
	s.errorResponseWithResult(w, r, err, result)
}

func (s *Server) errorResponseWithResult(w http.ResponseWriter, r *http.Request, err error, result any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.internalServerError(w, r, err)
		return
	}

	env := &errorEnvelope{
		Success: false,
		Message: err.Error(),
		Status:  status,
		Code:    types.ErrorCode(err),
		Result:  result,
	}

	s.logger.Info("request rejected", map[string]any{
		"path":   r.URL.Path,
		"status": status,
		"code":   env.Code,
	})
	_ = writeJSON(w, status, env)
}
