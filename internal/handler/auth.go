package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
	"github.com/iliyamo/eldercare-auth/internal/auth"
	"github.com/iliyamo/eldercare-auth/internal/metrics"
	"github.com/iliyamo/eldercare-auth/internal/middleware"
	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/ratelimit"
	"github.com/iliyamo/eldercare-auth/internal/validate"
)

const requestTimeout = 5 * time.Second

// AuthHandler exposes auth.Service over HTTP.
type AuthHandler struct {
	svc   *auth.Service
	v     *validate.Validator
	login ratelimit.Limiter
	log   zerolog.Logger
}

// NewAuthHandler wires the handler. login limits attempts per IP and email;
// nil disables it.
func NewAuthHandler(svc *auth.Service, v *validate.Validator, login ratelimit.Limiter, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, v: v, login: login, log: log}
}

// ----- DTOs -----

type registerReq struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,password"`
	Role      string `json:"role" validate:"selfrole"`
}

type tokenReq struct {
	Token string `json:"token" validate:"required"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetReq struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

type messageResp struct {
	Message auth.Message `json:"message"`
}

// bind decodes and validates the JSON body into req.
func (h *AuthHandler) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation(apperr.FieldError{Field: "body", Reason: "malformed JSON"})
	}
	return h.v.Check(req).Err()
}

func meta(c echo.Context) auth.Meta {
	return auth.Meta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func bearer(c echo.Context) (string, error) {
	tok, ok := middleware.BearerToken(c)
	if !ok {
		return "", apperr.ErrTokenInvalid
	}
	return tok, nil
}

// Register: create an inactive account and email a verification link.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := h.svc.Register(ctx, auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
	}, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, messageResp{Message: msg})
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req tokenReq
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := h.svc.VerifyEmail(ctx, req.Token, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: msg})
}

// Login: check the per IP+email budget, then exchange credentials for a
// token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if h.login != nil {
		key := "login:" + c.RealIP() + ":" + model.NormalizeEmail(req.Email)
		d, err := h.login.Allow(ctx, key)
		switch {
		case err != nil:
			h.log.Warn().Err(err).Msg("login limiter unavailable")
		case !middleware.WriteDecision(c, d):
			metrics.RecordRateLimited("login")
			return apperr.ErrRateLimited
		}
	}

	pair, err := h.svc.Login(ctx, req.Email, req.Password, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh rotates the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	pair, err := h.svc.Refresh(ctx, req.RefreshToken, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

// ForgotPassword answers the same way whether or not the email exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := h.svc.ForgotPassword(ctx, req.Email, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: msg})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := h.svc.ResetPassword(ctx, req.Token, req.NewPassword, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: msg})
}

// Logout revokes the refresh token in the body for the bearer of the
// access token.
func (h *AuthHandler) Logout(c echo.Context) error {
	access, err := bearer(c)
	if err != nil {
		return err
	}
	var req refreshReq
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := h.svc.Logout(ctx, access, req.RefreshToken, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: msg})
}

// LogoutAll revokes every refresh session of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	access, err := bearer(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := h.svc.LogoutAll(ctx, access, meta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: msg})
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	access, err := bearer(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.svc.GetProfile(ctx, access)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
