// Package auth provides Gin middleware for enforcing Auth0 JWT auth.
package auth

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LocalSubject is the account used for every request when auth is disabled.
const LocalSubject = "local-dev"

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	RequireScopes []string
	PublicPaths   map[string]bool
	// DisableAuth skips verification outside Lambda. Requests run as
	// LocalSubject.
	DisableAuth bool
	// OnAuthenticated runs after verification, before the handler. An error
	// aborts the request with 500.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
	Logger          *zap.SugaredLogger
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	disabled := cfg.DisableAuth && !runningInLambda()
	if disabled {
		log.Warnw("auth.disabled", "subject", LocalSubject)
	}

	return func(c *gin.Context) {
		if cfg.PublicPaths != nil && cfg.PublicPaths[c.FullPath()] {
			c.Next()
			return
		}

		var claims *Claims
		if disabled {
			claims = &Claims{
				Subject: LocalSubject,
				Email:   LocalSubject + "@localhost",
				Issuer:  "local",
				Raw:     map[string]any{"sub": LocalSubject},
			}
		} else {
			var ok bool
			if claims, ok = authenticate(c, verifier, cfg.RequireScopes, log); !ok {
				return
			}
		}

		ctx := WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)

		if cfg.OnAuthenticated != nil {
			if err := cfg.OnAuthenticated(c, claims); err != nil {
				log.Errorw("auth.on_authenticated.error", "sub", claims.Subject, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
				return
			}
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, verifier *Verifier, scopes []string, log *zap.SugaredLogger) (*Claims, bool) {
	path := c.Request.URL.Path
	if verifier == nil {
		respondUnauthorized(c, "auth verifier not configured")
		return nil, false
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		log.Infow("auth.failure", "reason", "missing_header", "path", path)
		respondUnauthorized(c, "missing authorization header")
		return nil, false
	}

	token, ok := extractBearerToken(authHeader)
	if !ok {
		log.Infow("auth.failure", "reason", "malformed_header", "path", path)
		respondUnauthorized(c, "invalid authorization header")
		return nil, false
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		log.Infow("auth.failure", "reason", "invalid_token", "path", path, "error", err)
		respondUnauthorized(c, "invalid token")
		return nil, false
	}

	if len(scopes) > 0 && !hasScopes(claims.Scope, scopes) {
		log.Infow("auth.failure", "reason", "missing_scope", "path", path)
		respondUnauthorized(c, "insufficient scope")
		return nil, false
	}
	return claims, true
}

func runningInLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func hasScopes(scopeClaim string, required []string) bool {
	if scopeClaim == "" {
		return false
	}
	available := map[string]struct{}{}
	for _, s := range strings.Fields(scopeClaim) {
		available[s] = struct{}{}
	}
	for _, scope := range required {
		if _, ok := available[scope]; !ok {
			return false
		}
	}
	return true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
