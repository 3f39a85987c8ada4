package apperrors

import (
	"errors"
)

// Closed set of error kinds the control plane returns to callers.
// Services wrap these with %w, transport code matches with errors.Is
// and maps them to status codes itself.
var (
	// Required credential token absent from the request
	ErrMissingCredential = errors.New("credential is missing")

	// Token signature or structure cannot be verified
	ErrInvalidToken = errors.New("token is invalid")

	// Token signature is valid but the expiry timestamp has lapsed
	ErrExpiredToken = errors.New("token is expired")

	// Token is valid and not expired but its identifier is in the revocation set
	ErrTokenRevoked = errors.New("token is revoked")

	// Password mismatch, unknown username or refresh hash mismatch
	// Callers must not be able to tell these cases apart
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Username already taken, or a token references a user that no longer exists
	ErrCredentialsConflict = errors.New("credentials conflict")

	// The same idempotency key is being processed by a concurrent request
	ErrRequestInProgress = errors.New("request is already in progress")

	// Coordination store or persistence timed out or errored
	// Retryable, unlike the kinds above. Never conflated with them.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Persistence sentinels outside the credential taxonomy
var (
	ErrUploadNotFound = errors.New("upload not found")
)
