package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eldercare-auth/internal/auth"
)

const principalKey = "principal"

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

// PrincipalFrom returns the caller stored by BearerAuth.
func PrincipalFrom(c echo.Context) (auth.Principal, bool) {
	p, ok := c.Get(principalKey).(auth.Principal)
	return p, ok
}

// clientKey identifies the caller for throttling: the authenticated user
// when there is one, otherwise the client IP.
func clientKey(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return "user:" + p.UserID.String()
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
