// Package httpx holds the response envelope and error rendering shared by all
// HTTP handlers.
package httpx

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

// Envelope is the body of every API response.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func OK[T any](c echo.Context, message string, data T) error {
	return c.JSON(http.StatusOK, Envelope[T]{Success: true, Message: message, Data: data})
}

func Created[T any](c echo.Context, message string, data T) error {
	return c.JSON(http.StatusCreated, Envelope[T]{Success: true, Message: message, Data: data})
}

// Bind decodes the request body into dst and reports malformed JSON as a
// validation error.
func Bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// UUIDParam parses the named path parameter.
func UUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// ErrorHandler renders every error as an Envelope with success=false.
// Internal and transient errors are logged and replaced with a generic message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := resolve(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("path", c.Path()).
				Str("kind", apperr.KindOf(err).String()).
				Msg("request failed")
		}

		body := Envelope[any]{Success: false, Message: message}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func resolve(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, msg
	}
	status := apperr.HTTPStatus(err)
	fallback := "internal server error"
	if apperr.Is(err, apperr.KindTransient) {
		fallback = "service temporarily unavailable, please retry"
	}
	return status, apperr.Message(err, fallback)
}
