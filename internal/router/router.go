package router

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/handler"
	"github.com/iliyamo/eldercare-auth/internal/metrics"
	"github.com/iliyamo/eldercare-auth/internal/middleware"
	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/ratelimit"
	"github.com/iliyamo/eldercare-auth/internal/validate"
)

// Deps are what New needs to build the HTTP surface.
type Deps struct {
	Auth      *handler.AuthHandler
	Authn     middleware.Authenticator
	Validator *validate.Validator
	// Throttle limits every /v1/auth request per client; nil disables it.
	Throttle ratelimit.Limiter
	Registry *prometheus.Registry
	Ping     func(context.Context) error
	Log      zerolog.Logger
}

// New returns an Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = d.Validator
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.BodyLimit("64K"))
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Ping))
	if d.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(d.Registry)))
	}
}

// RegisterAuth registers the auth flows under /v1/auth and the protected
// profile endpoint under /v1.
func RegisterAuth(e *echo.Echo, d Deps) {
	a := d.Auth

	g := e.Group("/v1/auth", middleware.Throttle(d.Throttle, "auth", d.Log))
	g.POST("/register", a.Register)
	g.POST("/verify-email", a.VerifyEmail)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)
	// logout endpoints authenticate with the bearer token themselves
	g.POST("/logout", a.Logout)
	g.POST("/logout-all", a.LogoutAll)

	v1 := e.Group("/v1")
	v1.Use(middleware.BearerAuth(d.Authn))
	v1.Use(middleware.RequireRole(model.AllRoles...))
	v1.GET("/me", a.Me)
}
