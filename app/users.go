package app

import (
	"example/docanalysis-api/auth"

	"github.com/gin-gonic/gin"
)

// registerAccount creates the ledger account on first sight of a subject.
// Existing balances are never touched.
func (s *Server) registerAccount(c *gin.Context, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	_, err := s.accounts.EnsureAccount(c.Request.Context(), claims.Subject, claims.Email, s.startingCredits)
	return err
}

func claimsFrom(c *gin.Context) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}
