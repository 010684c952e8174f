package auth

import "errors"

var (
	// ErrTokenInvalid is returned for a token with a bad signature, wrong
	// algorithm or missing claims.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("auth: token has expired")

	// ErrForbidden is returned when a token's scope does not cover a request.
	ErrForbidden = errors.New("auth: insufficient scope")

	// ErrWeakSecret is returned when signing with a secret shorter than MinSecretLength.
	ErrWeakSecret = errors.New("auth: secret too short")

	// ErrUnknownScope is returned for a scope other than read or control.
	ErrUnknownScope = errors.New("auth: unknown scope")
)
