package app

import (
	"net/http"

	"example/docanalysis-api/app/models"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the authenticated account and its balance.
func (s *Server) Me(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	acct, err := s.accounts.GetAccount(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "http.me.error", err)
		return
	}

	c.JSON(http.StatusOK, models.MeResponse{
		ID:                 acct.ID,
		Email:              acct.Email,
		Credits:            acct.Credits,
		SubscriptionStatus: string(acct.SubscriptionStatus),
	})
}
