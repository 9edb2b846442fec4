package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// Stable error codes. Clients switch on these, never on messages.
const (
	codeValidation        = "validation_error"
	codePolicyViolation   = "policy_violation"
	codeInsufficientFunds = "insufficient_funds"
	codeOutOfStock        = "out_of_stock"
	codeNotRedeemable     = "not_redeemable"
	codeAlreadyReviewed   = "already_reviewed"
	codeUnauthorized      = "unauthorized"
	codeForbidden         = "forbidden"
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codeDuplicateRequest  = "duplicate_request"
	codeInternal          = "internal_error"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// APIError is the error part of the envelope.
type APIError struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Details map[string]interface{}  `json:"details,omitempty"`
	Errors  []shared.FieldViolation `json:"errors,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Total     int       `json:"total,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, resp JSONResponse) {
	if resp.Meta == nil {
		resp.Meta = &ResponseMeta{}
	}
	resp.Meta.Timestamp = time.Now().UTC()
	resp.Meta.Version = "v1"
	resp.Meta.RequestID = w.Header().Get("X-Request-ID")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, status, JSONResponse{Success: status < 400, Data: data})
}

// writeList writes a success envelope with the item count in meta.
func writeList(w http.ResponseWriter, data interface{}, total int) {
	writeEnvelope(w, http.StatusOK, JSONResponse{
		Success: true,
		Data:    data,
		Meta:    &ResponseMeta{Total: total},
	})
}

// writeError writes an error envelope.
func writeError(w http.ResponseWriter, status int, apiErr *APIError) {
	writeEnvelope(w, status, JSONResponse{Success: false, Error: apiErr})
}

// reject is the handlers.RejectFunc used by middleware.
func (s *Server) reject(w http.ResponseWriter, _ *http.Request, status int, code, message string) {
	writeError(w, status, &APIError{Code: code, Message: message})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// respondError maps err to a status and stable code. Unclassified errors are
// logged in full and reported with a generic message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := classifyError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
	}
	writeError(w, status, apiErr)
}

func classifyError(err error) (int, *APIError) {
	apiErr := &APIError{Message: err.Error()}
	if de, ok := shared.AsDomainError(err); ok {
		apiErr.Message = de.Message
		apiErr.Details = de.Details
		apiErr.Errors = de.Violations
	}

	var maxBytes *http.MaxBytesError
	switch {
	// Order matters: the specific sentinels share kinds with the generic ones.
	case errors.Is(err, shared.ErrAlreadyReviewed):
		apiErr.Code = codeAlreadyReviewed
		return http.StatusBadRequest, apiErr
	case errors.Is(err, shared.ErrDuplicateRequest):
		apiErr.Code = codeDuplicateRequest
		return http.StatusConflict, apiErr
	case errors.Is(err, shared.ErrInsufficientFunds):
		apiErr.Code = codeInsufficientFunds
		return http.StatusBadRequest, apiErr
	case errors.Is(err, shared.ErrOutOfStock):
		apiErr.Code = codeOutOfStock
		return http.StatusBadRequest, apiErr
	case errors.Is(err, shared.ErrNotRedeemable):
		apiErr.Code = codeNotRedeemable
		return http.StatusBadRequest, apiErr
	case errors.Is(err, shared.ErrPolicyViolation):
		apiErr.Code = codePolicyViolation
		return http.StatusBadRequest, apiErr
	case errors.As(err, &maxBytes):
		apiErr.Code = "payload_too_large"
		apiErr.Message = "request body too large"
		return http.StatusRequestEntityTooLarge, apiErr
	case shared.IsValidation(err):
		apiErr.Code = codeValidation
		return http.StatusBadRequest, apiErr
	case errors.Is(err, shared.ErrUnauthorized):
		apiErr.Code = codeUnauthorized
		return http.StatusUnauthorized, apiErr
	case errors.Is(err, shared.ErrForbidden):
		apiErr.Code = codeForbidden
		return http.StatusForbidden, apiErr
	case shared.IsNotFound(err):
		apiErr.Code = codeNotFound
		return http.StatusNotFound, apiErr
	case shared.IsConflict(err), shared.IsAlreadyExists(err):
		apiErr.Code = codeConflict
		return http.StatusConflict, apiErr
	default:
		return http.StatusInternalServerError, &APIError{
			Code:    codeInternal,
			Message: "an unexpected error occurred",
		}
	}
}

// badRequest reports a malformed request body or parameter.
func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, &APIError{Code: codeValidation, Message: message})
}
