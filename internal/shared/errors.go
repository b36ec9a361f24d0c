package shared

import "errors"

// Access decision taxonomy. Business denials (policy, anomaly, scoring) are
// expected outcomes; the remaining errors describe infrastructure or input
// problems.
var (
	// ErrInvalidCredentials indicates a failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing, invalid, expired or revoked credential.
	ErrUnauthenticated = errors.New("invalid or missing credential")
	// ErrPolicyDenied indicates the identity does not satisfy the resource policy.
	ErrPolicyDenied = errors.New("abac policy denied")
	// ErrAnomalyDetected indicates the risk oracle flagged the action.
	ErrAnomalyDetected = errors.New("anomalous activity detected")
	// ErrScoringUnavailable indicates the risk oracle could not produce a verdict.
	ErrScoringUnavailable = errors.New("risk scoring unavailable")
	// ErrStorageFailure indicates a blob store or persistence failure during an action.
	ErrStorageFailure = errors.New("storage failure")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint collision.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates a role gate (not ABAC) rejected the caller.
	ErrForbidden = errors.New("forbidden")
)
