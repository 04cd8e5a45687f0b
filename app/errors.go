package app

import (
	"errors"
	"net/http"

	"example/docanalysis-api/analysis"
	"example/docanalysis-api/app/models"
	"example/docanalysis-api/billing"
	"example/docanalysis-api/ledger"
	"example/docanalysis-api/upload"

	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{ledger.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient credits"},
	{analysis.ErrExtraction, http.StatusBadGateway, "document analysis failed"},
	{billing.ErrPaymentNotComplete, http.StatusConflict, "payment not complete"},
	{billing.ErrPaymentMismatch, http.StatusBadRequest, "payment does not match this purchase"},
	{billing.ErrInvalidRequest, http.StatusBadRequest, "invalid purchase request"},
	{billing.ErrProcessor, http.StatusBadGateway, "payment provider unavailable"},
	{upload.ErrTooLarge, http.StatusRequestEntityTooLarge, "file too large"},
	{upload.ErrNotPDF, http.StatusBadRequest, "only PDF files are accepted"},
	{upload.ErrEmpty, http.StatusBadRequest, "empty file"},
	{ledger.ErrNotFound, http.StatusNotFound, "not found"},
}

// respondError maps the error taxonomy to a status and a fixed message.
// Failed ledger transactions are 503 with Retry-After. Anything else
// unrecognised is an internal error; the cause is only logged.
func (s *Server) respondError(c *gin.Context, event string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				s.log.Errorw(event, "path", c.FullPath(), "error", err)
			} else {
				s.log.Infow(event, "path", c.FullPath(), "status", m.status, "error", err)
			}
			c.JSON(m.status, models.ErrorResponse{Error: m.message})
			return
		}
	}
	if ledger.IsRetryable(err) {
		s.log.Warnw(event, "path", c.FullPath(), "status", http.StatusServiceUnavailable, "error", err)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "temporarily unavailable, retry later"})
		return
	}
	s.log.Errorw(event, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
}

func accountID(c *gin.Context) (string, bool) {
	claims, ok := claimsFrom(c)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}
