package access

import "errors"

// Failure classes surfaced by the resolver. Decisions wrap one of these so
// callers can branch with errors.Is; none of them is fatal to the process.
var (
	// ErrConfigurationIncomplete means required provider keys are missing.
	ErrConfigurationIncomplete = errors.New("configuration incomplete")

	// ErrConfigurationInvalid means a value is present but malformed.
	ErrConfigurationInvalid = errors.New("configuration invalid")

	// ErrAuthenticationUnavailable means the OIDC mechanism cannot be used in this runtime.
	ErrAuthenticationUnavailable = errors.New("authentication unavailable")

	// ErrAuthorizationDenied means a valid identity failed the allowlist or role check.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrUnexpectedFailure means resolution panicked and was recovered.
	ErrUnexpectedFailure = errors.New("unexpected failure")
)
