package app

import (
	"time"

	"example/docanalysis-api/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	CORSOrigins []string
	DisableAuth bool
}

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server, verifier *auth.Verifier, cfg RouterConfig) *gin.Engine {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.Health)
	router.POST("/api/stripe/webhook", s.StripeWebhook)

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		DisableAuth:     cfg.DisableAuth,
		OnAuthenticated: s.registerAccount,
		Logger:          s.log,
	}))
	protected.GET("/me", s.Me)
	protected.POST("/api/analyze", s.Analyze)
	protected.GET("/api/documents", s.ListDocuments)
	protected.GET("/api/documents/:id", s.GetDocument)
	protected.GET("/api/transactions", s.ListTransactions)
	protected.POST("/api/billing/payment-intent", s.CreatePaymentIntent)
	protected.POST("/api/billing/confirm", s.ConfirmPurchase)

	return router
}
