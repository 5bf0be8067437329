package server

import "errors"

var (
	// ErrLocalLoginDisabled is returned when auth.local.enabled is false
	ErrLocalLoginDisabled = errors.New("local login is disabled")

	// ErrInvalidCredentials is the only failure a local login reports
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrOIDCUnavailable is returned when no usable OIDC provider is configured
	ErrOIDCUnavailable = errors.New("oidc login is not available")

	// ErrMissingEmail is returned when the identity provider omits the email claim
	ErrMissingEmail = errors.New("identity provider did not return an email")
)
