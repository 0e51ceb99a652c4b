package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/lsd"
)

const maxNotificationBytes = 1 << 20

// LoanUpdater applies a status document to a local loan.
type LoanUpdater interface {
	UpdateLoan(ctx context.Context, loanID string, doc lsd.Document) error
}

// HandleNotify accepts the status document a distributor pushes when a loan
// changes on its side. The document is checked exactly like a fetched one.
func HandleNotify(svc LoanUpdater, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		loanID := c.Param("loan_id")

		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotificationBytes+1))
		if err != nil {
			return writeError(c, stdhttp.StatusBadRequest, codeInvalidDocument, "unreadable body")
		}
		if len(body) > maxNotificationBytes {
			return writeError(c, stdhttp.StatusRequestEntityTooLarge, codeBodyTooLarge, "status document too large")
		}

		doc, err := lsd.ParseDocument(body)
		if err != nil {
			logger.Warn().Err(err).Str("loan_id", loanID).Msg("rejected loan notification")
			return writeError(c, stdhttp.StatusBadRequest, codeInvalidDocument, err.Error())
		}

		if err := svc.UpdateLoan(c.Request().Context(), loanID, doc); err != nil {
			status := statusFor(err)
			if status >= stdhttp.StatusInternalServerError {
				logger.Error().Err(err).Str("loan_id", loanID).Msg("loan notification failed")
				return writeError(c, status, domain.Kind(err), "internal error")
			}
			if errors.Is(err, domain.ErrLoanNotFound) {
				logger.Info().Str("loan_id", loanID).Msg("notification for unknown loan")
			}
			return writeError(c, status, domain.Kind(err), err.Error())
		}
		return c.NoContent(stdhttp.StatusOK)
	}
}
