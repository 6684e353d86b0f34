package middleware

import "github.com/labstack/echo/v4"

// username returns the authenticated username for logs, or "anonymous".
func username(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.Username != "" {
		return id.Username
	}
	return "anonymous"
}
