package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"example/docanalysis-api/app/models"
	"example/docanalysis-api/ledger"
	"example/docanalysis-api/upload"

	"github.com/gin-gonic/gin"
)

// multipart framing allowance on top of the file limit
const formOverhead = 1 << 20

// Analyze accepts a PDF in the "file" field and runs it through the
// orchestrator. One credit is charged only when a result is returned.
func (s *Server) Analyze(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.uploads.MaxBytes()+formOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(c, "http.analyze.upload", upload.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	file, err := s.uploads.SaveMultipart(fh)
	if err != nil {
		s.respondError(c, "http.analyze.upload", err)
		return
	}

	out, err := s.analyzer.Analyze(c.Request.Context(), id, file)
	if err != nil {
		s.respondError(c, "http.analyze.error", err)
		return
	}

	result, err := json.Marshal(out.Record)
	if err != nil {
		s.respondError(c, "http.analyze.encode", err)
		return
	}
	c.JSON(http.StatusOK, models.AnalyzeResponse{
		Result:           result,
		CreditsRemaining: out.CreditsRemaining,
		DocumentID:       out.DocumentID,
	})
}

// ListDocuments returns the caller's analyses, newest first.
func (s *Server) ListDocuments(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	docs, err := s.accounts.ListDocuments(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "http.documents.error", err)
		return
	}

	out := make([]models.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentSummary(d))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) GetDocument(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	doc, err := s.accounts.GetDocument(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		s.respondError(c, "http.document.error", err)
		return
	}
	c.JSON(http.StatusOK, documentSummary(doc))
}

func (s *Server) ListTransactions(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	txs, err := s.accounts.ListTransactions(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "http.transactions.error", err)
		return
	}

	out := make([]models.TransactionEntry, 0, len(txs))
	for _, tx := range txs {
		out = append(out, models.TransactionEntry{
			ID:          tx.ID,
			Kind:        string(tx.Kind),
			Amount:      tx.Amount,
			Description: tx.Description,
			PaymentRef:  tx.PaymentRef,
			CreatedAt:   tx.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func documentSummary(d ledger.Document) models.DocumentSummary {
	return models.DocumentSummary{
		ID:           d.ID,
		OriginalName: d.OriginalName,
		Result:       d.Result,
		Fallback:     d.Fallback,
		CreatedAt:    d.CreatedAt,
	}
}
