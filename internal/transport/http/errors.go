package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/odl-lending/internal/domain"
)

const (
	codeMethodNotAllowed = "method_not_allowed"
	codeNotFound         = "not_found"
	codeInvalidDocument  = "invalid_document"
	codeBodyTooLarge     = "body_too_large"
	codeInternalError    = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorResponse{Error: msg, Code: code})
}

// statusFor maps an engine error to the response status. The error code in
// the body is domain.Kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrLoanNotFound),
		errors.Is(err, domain.ErrPoolNotFound):
		return stdhttp.StatusNotFound
	case errors.Is(err, domain.ErrBadResponse):
		return stdhttp.StatusBadRequest
	case errors.Is(err, domain.ErrIntegrationTimeout):
		return stdhttp.StatusGatewayTimeout
	case errors.Is(err, domain.ErrIntegrationFailure):
		return stdhttp.StatusBadGateway
	default:
		return stdhttp.StatusInternalServerError
	}
}

// errorHandler renders errors echo raises itself, such as unknown routes,
// in the same shape as handler errors.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = writeError(c, stdhttp.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	code := codeInternalError
	switch he.Code {
	case stdhttp.StatusNotFound:
		code = codeNotFound
	case stdhttp.StatusMethodNotAllowed:
		code = codeMethodNotAllowed
	case stdhttp.StatusRequestEntityTooLarge:
		code = codeBodyTooLarge
	}
	_ = writeError(c, he.Code, code, stdhttp.StatusText(he.Code))
}
