package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired indicates the refresh token was rejected and the session is gone.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnauthorized indicates the server rejected the access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNetworkFailure indicates the API could not be reached or answered with a server error.
	ErrNetworkFailure = errors.New("network failure")
	// ErrValidation indicates input rejected before or by the API.
	ErrValidation = errors.New("validation failed")
)
