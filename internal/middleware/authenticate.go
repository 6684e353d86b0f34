package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/logging"
)

// TokenValidator is the part of the token service the request
// authenticator needs.
type TokenValidator interface {
	ExtractSubject(token string) (string, error)
	Validate(token, expectedSubject string) bool
}

const bearerPrefix = "Bearer "

// Authenticate attaches an auth.Identity to the request context when the
// request carries a valid bearer token for a live, active account. It never
// rejects a request: every failure leaves the request anonymous and access
// control is left to RequireAuthenticated and RequireAuthority.
func Authenticate(tokens TokenValidator, identities auth.IdentityResolver, logger *slog.Logger) echo.MiddlewareFunc {
	logger = logging.OrDiscard(logger)
	// The outer function runs once when the middleware is registered; the
	// returned handler runs for every request.
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			// Read the Authorization header. Anything other than
			// "Bearer <token>" leaves the request anonymous.
			raw, ok := bearerToken(req.Header.Get(echo.HeaderAuthorization))
			if !ok {
				return next(c)
			}

			// Read the subject without checking the signature. It only picks
			// which account to load; Validate below decides whether the token
			// is trusted.
			subject, err := tokens.ExtractSubject(raw)
			if err != nil {
				logger.DebugContext(req.Context(), "bearer token unreadable", "err", err)
				return next(c)
			}

			// An identity set further out in the chain wins.
			if _, already := auth.IdentityFromContext(req.Context()); already {
				return next(c)
			}

			// Load the account named by the subject. Missing, deleted and
			// inactive accounts resolve to ErrUnknownIdentity; anything else is
			// a store failure and is logged at warn.
			id, err := identities.Resolve(req.Context(), subject)
			if err != nil {
				if errors.Is(err, auth.ErrUnknownIdentity) {
					logger.DebugContext(req.Context(), "token subject not resolvable", "username", subject)
				} else {
					logger.WarnContext(req.Context(), "identity lookup failed", "username", subject, "err", err)
				}
				return next(c)
			}

			// Check signature, algorithm, expiry and that the token names
			// this account.
			if !tokens.Validate(raw, id.Username) {
				return next(c)
			}

			// Attach the identity to the request context. Handlers read it
			// back with IdentityFrom.
			c.SetRequest(req.WithContext(auth.ContextWithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	return raw, raw != ""
}

// IdentityFrom is a convenience for handlers.
func IdentityFrom(c echo.Context) (auth.Identity, bool) {
	return auth.IdentityFromContext(c.Request().Context())
}

// WithIdentity returns a copy of ctx that the request authenticator will
// treat as already authenticated. Used by tests and internal callers.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return auth.ContextWithIdentity(ctx, id)
}
