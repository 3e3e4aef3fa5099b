package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Error codes surfaced to API clients
const (
	CodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	CodeInvalidAPIKey           = "INVALID_API_KEY"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeValidationError         = "VALIDATION_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternalError           = "INTERNAL_ERROR"
)

const documentationURL = "https://docs.omen-systems.io/api/errors"

// ErrorDetail is one field-level problem in a 422 response
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ErrorEnvelope is the uniform error shape for every non-2xx response
type ErrorEnvelope struct {
	Error            string        `json:"error"`
	Message          string        `json:"message"`
	ErrorCode        string        `json:"error_code"`
	Details          []ErrorDetail `json:"details,omitempty"`
	Hint             string        `json:"hint,omitempty"`
	DocumentationURL string        `json:"documentation_url"`
	Timestamp        time.Time     `json:"timestamp"`
	RequestID        string        `json:"request_id"`
	RequiredScopes   []string      `json:"required_scopes,omitempty"`
	MissingScopes    []string      `json:"missing_scopes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Response encode failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, hint string) {
	writeErrorDetails(w, r, status, code, message, hint, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message, hint string, details []ErrorDetail) {
	writeJSON(w, status, ErrorEnvelope{
		Error:            http.StatusText(status),
		Message:          message,
		ErrorCode:        code,
		Details:          details,
		Hint:             hint,
		DocumentationURL: documentationURL,
		Timestamp:        time.Now().UTC(),
		RequestID:        requestIDFrom(r),
	})
}
