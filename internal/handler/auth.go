package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/logging"
	"github.com/nickmous/beanstash/internal/middleware"
)

// requestTimeout bounds the store work a single request may do.
const requestTimeout = 5 * time.Second

// Login is the part of auth.Authenticator the handler needs.
type Login interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// AuthHandler serves the login and identity endpoints.
type AuthHandler struct {
	Auth   Login
	Logger *slog.Logger
}

func NewAuthHandler(a Login, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{Auth: a, Logger: logging.OrDiscard(logger)}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResp struct {
	Token string `json:"token"`
}

// Login exchanges a username and password for a bearer token. Every
// credential or account-state failure answers 403 with the same body.
func (h *AuthHandler) Login(c echo.Context) error {
	// Decode the JSON body. A body that does not parse is a client error.
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	// Both fields are required; an empty body binds to empty strings and
	// fails here.
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password required"})
	}

	// Bound the store lookup and password check by the request timeout.
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	// Map the outcome to a status. Credential and account-state failures
	// share one 403 body so callers cannot tell them apart.
	token, err := h.Auth.Login(ctx, req.Username, req.Password)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, tokenResp{Token: token})
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "authentication failed"})
	case errors.Is(err, auth.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	default:
		logging.OrDiscard(h.Logger).ErrorContext(ctx, "login failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// Me returns the identity resolved by the request authenticator.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, id)
}
