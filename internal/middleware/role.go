package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
	"github.com/iliyamo/eldercare-auth/internal/model"
)

// RequireRole lets a request through only when the caller's role claim is
// one of roles. It must run after BearerAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok || !allowed[p.Role] {
				return &apperr.Error{Kind: apperr.KindForbidden, Message: "Insufficient role"}
			}
			return next(c)
		}
	}
}
