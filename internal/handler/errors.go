package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
)

type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// ErrorHandler renders every returned error as {"error":{"code","message"}}.
// Internal causes are logged with their stack and never sent to the client.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			log.Error().Stack().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, errorResponse{Error: body})
		}
		if werr != nil {
			log.Warn().Err(werr).Msg("write error response")
		}
	}
}

func render(err error) (int, errorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorBody{Code: httpCode(he.Code), Message: fmt.Sprint(he.Message)}
	}
	e := apperr.From(err)
	return e.Kind.HTTPStatus(), errorBody{Code: string(e.Kind), Message: e.Message, Fields: e.Fields}
}

// httpCode names router-level failures (unknown route, wrong method).
func httpCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusBadRequest:
		return string(apperr.KindValidation)
	case http.StatusUnauthorized:
		return string(apperr.KindUnauthorized)
	case http.StatusTooManyRequests:
		return string(apperr.KindRateLimited)
	}
	if status >= http.StatusInternalServerError {
		return string(apperr.KindInternal)
	}
	return http.StatusText(status)
}
