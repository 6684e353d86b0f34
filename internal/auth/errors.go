package auth

import "errors"

var (
	// ErrAuthenticationFailed is the only failure a caller of Login sees for
	// bad credentials or an unusable account. The reason is logged, never
	// returned.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrStoreUnavailable wraps credential store failures other than a miss.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrMalformedToken is returned by ExtractSubject when the token cannot
	// be parsed or carries no subject.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSigningConfig rejects weak keys and non-positive lifetimes.
	ErrInvalidSigningConfig = errors.New("invalid signing config")
	ErrEmptyPassword        = errors.New("empty password")
	ErrPasswordTooLong      = errors.New("password longer than 72 bytes")
)
