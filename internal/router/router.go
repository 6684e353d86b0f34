// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/handler"
	"github.com/nickmous/beanstash/internal/middleware"
)

// Deps are the components the routes are built from.
type Deps struct {
	Auth       *handler.AuthHandler
	DB         handler.Pinger
	Tokens     middleware.TokenValidator
	Identities auth.IdentityResolver
	Logger     *slog.Logger
}

// New returns an Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	// The server logs its own startup line through slog.
	e.HideBanner = true
	e.HidePort = true
	// Handlers call c.Validate on their DTOs.
	e.Validator = handler.NewRequestValidator()
	RegisterRoutes(e, d)
	return e
}

// RegisterRoutes installs the global middleware chain and the routes.
func RegisterRoutes(e *echo.Echo, d Deps) {
	// Tag every request with an X-Request-ID so log lines can be correlated.
	e.Use(echomw.RequestID())
	// The request logger runs outermost. It reads the identity after the
	// handler returns, so it sees what Authenticate attached further in.
	e.Use(middleware.RequestLogger(d.Logger))
	// Turn handler panics into 500 responses.
	e.Use(echomw.Recover())
	// Resolve the bearer token, if any, into an identity on the request
	// context. This never rejects; the routes below decide what they need.
	e.Use(middleware.Authenticate(d.Tokens, d.Identities, d.Logger))

	// Health check for load balancers and monitoring. Answers 503 when the
	// database does not respond.
	e.GET("/healthz", handler.Health(d.DB))

	// Exchange a username and password for a bearer token. Open to
	// anonymous callers.
	e.POST("/auth/login", d.Auth.Login)

	// Return the caller's identity. Anonymous requests get 401 and
	// identities without ROLE_USER get 403.
	e.GET("/me", d.Auth.Me,
		middleware.RequireAuthenticated(),
		middleware.RequireAuthority(auth.RoleUser),
	)
}
