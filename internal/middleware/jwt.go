package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
	"github.com/iliyamo/eldercare-auth/internal/auth"
)

// Authenticator verifies access tokens. *auth.Service implements it.
type Authenticator interface {
	Authenticate(accessToken string) (auth.Principal, error)
}

// BearerAuth rejects requests without a valid access token and stores the
// caller for downstream handlers (see PrincipalFrom).
func BearerAuth(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := BearerToken(c)
			if !ok {
				return apperr.ErrTokenInvalid
			}
			p, err := a.Authenticate(raw)
			if err != nil {
				return err
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}
