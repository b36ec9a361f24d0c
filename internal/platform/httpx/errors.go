package httpx

import (
	"errors"
	"net/http"

	"github.com/securhealth/portal/internal/shared"
)

// Client-facing messages. Denial details stay in the audit trail.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgPolicyDenied       = "ABAC policy denied"
	MsgAnomalyDetected    = "Anomalous activity detected"
	MsgScoringUnavailable = "Risk scoring unavailable"
	MsgStorageFailure     = "Storage failure"
	MsgInvalidRequest     = "Invalid request"
)

// StatusFor maps a domain error onto an HTTP status and generic message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized, MsgInvalidCredentials
	case errors.Is(err, shared.ErrPolicyDenied):
		return http.StatusForbidden, MsgPolicyDenied
	case errors.Is(err, shared.ErrAnomalyDetected):
		return http.StatusForbidden, MsgAnomalyDetected
	case errors.Is(err, shared.ErrScoringUnavailable):
		return http.StatusForbidden, MsgScoringUnavailable
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict, "Already exists"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, MsgInvalidRequest
	case errors.Is(err, shared.ErrStorageFailure):
		return http.StatusInternalServerError, MsgStorageFailure
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// RespondError maps domain errors to {"error": msg} responses.
func RespondError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	Error(w, status, msg)
}
