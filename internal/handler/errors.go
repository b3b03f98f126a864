package handler // error rendering for the HTTP layer

import (
	"errors"   // errors matches wrapped validation and HTTP errors
	"fmt"      // fmt formats error messages
	"net/http" // http provides status code constants

	charmlog "github.com/charmbracelet/log"            // charmlog is the fallback logger type
	"github.com/iliyamo/items-api/internal/logger"     // logger carries the request-scoped logger
	"github.com/iliyamo/items-api/internal/repository" // repository defines the not-found sentinel
	"github.com/labstack/echo/v4"                      // echo provides HTTPError and the handler signature
)

// ErrItemNotFound is the only domain error surfaced to clients.
var ErrItemNotFound = echo.NewHTTPError(http.StatusNotFound, "Item not found")

// FieldError describes one rejected input location, e.g. ["body","name"].
type FieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// ValidationError is returned before a handler touches the store.  It renders
// as 422 {"detail":[...]}.
type ValidationError struct {
	Errors []FieldError
}

// Error summarises the first rejected field.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %v %s", e.Errors[0].Loc, e.Errors[0].Msg)
}

// translate maps repository sentinels to HTTP errors and passes everything
// else through untouched.
func translate(err error) error {
	if repository.IsNotFound(err) {
		return ErrItemNotFound
	}
	return err
}

// bindError turns a decoding failure into a validation error.  Unsupported
// media types keep their own status.
func bindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusUnsupportedMediaType {
			return err
		}
		return &ValidationError{Errors: []FieldError{{
			Loc:  []any{"body"},
			Msg:  fmt.Sprint(he.Message),
			Type: "json_invalid",
		}}}
	}
	return &ValidationError{Errors: []FieldError{{Loc: []any{"body"}, Msg: err.Error(), Type: "json_invalid"}}}
}

// ErrorHandler renders every error as {"detail": ...}.  Errors that are
// neither validation nor HTTP errors are unexpected: they are logged and
// answered with a generic 500.
func ErrorHandler(fallback *charmlog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		var detail any = http.StatusText(http.StatusInternalServerError)

		var ve *ValidationError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ve):
			status, detail = http.StatusUnprocessableEntity, ve.Errors
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				detail = msg
			} else {
				detail = http.StatusText(he.Code)
			}
		default:
			log := logger.FromContext(c.Request().Context())
			if log == charmlog.Default() && fallback != nil {
				log = fallback
			}
			log.Error("Unhandled error", "method", c.Request().Method, "uri", c.Request().RequestURI, "error", err)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, map[string]any{"detail": detail})
		}
		if werr != nil && fallback != nil {
			fallback.Error("Failed to write error response", "error", werr)
		}
	}
}
