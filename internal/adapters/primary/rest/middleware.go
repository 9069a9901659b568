package rest

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

const identityKey = "identity"

// RequireAuth décode le header Authorization et injecte l'identité dans le contexte gin.
func RequireAuth(verifier ports.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
			return
		}

		identity, err := verifier.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(identityKey, *identity)
		c.Next()
	}
}

// Caller récupère l'identité posée par RequireAuth.
func Caller(c *gin.Context) domain.AuthenticatedIdentity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(domain.AuthenticatedIdentity)
	return identity
}

// RequestLogger loggue chaque requête avec slog, niveau selon le statut.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
		}
		switch {
		case status >= http.StatusInternalServerError:
			slog.ErrorContext(c.Request.Context(), "HTTP request", attrs...)
		case status >= http.StatusBadRequest:
			slog.WarnContext(c.Request.Context(), "HTTP request", attrs...)
		default:
			slog.DebugContext(c.Request.Context(), "HTTP request", attrs...)
		}
	}
}
