package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// writeError traduit les erreurs du domaine en statuts HTTP.
func writeError(c *gin.Context, err error) {
	var (
		stale     *domain.StaleProtocolStateError
		transport *domain.TransportError
	)

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &stale):
		c.JSON(http.StatusConflict, gin.H{"error": "stale protocol state", "step": stale.Step, "facts": stale.Facts})
	case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, domain.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &transport):
		slog.WarnContext(c.Request.Context(), "Upstream call failed", "origin", transport.Origin, "path", transport.Path, "status", transport.Status)
		c.JSON(http.StatusBadGateway, gin.H{"error": "peer call failed"})
	default:
		// ErrSyncCallsDisallowed compris : c'est une erreur de déploiement
		slog.ErrorContext(c.Request.Context(), "❌ Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
