package v1

import (
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/internal/logger"
	logicv1 "github.com/duynhne/travel-portal/internal/logic/v1"
)

// accountSections are the customer account pages. They have no backing
// store yet and always list nothing.
var accountSections = []string{"addresses", "bookings", "trips", "favorites"}

// UpdateName handles PATCH /api/v1/account/name.
func (h *Handler) UpdateName(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	log := logger.FromContext(ctx)

	var req domain.UpdateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.sessions.UpdateName(ctx, req.Name)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("Update name failed")
		writeAccountError(c, err)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("Profile name updated")
	c.JSON(http.StatusOK, user)
}

// UpdatePassword handles PATCH /api/v1/account/password.
func (h *Handler) UpdatePassword(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	log := logger.FromContext(ctx)

	var req domain.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.sessions.UpdatePassword(ctx, req.Password, req.OldPassword)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("Update password failed")
		writeAccountError(c, err)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("Password updated")
	c.JSON(http.StatusOK, user)
}

// ListAccountSection handles GET /api/v1/account/{addresses,bookings,trips,favorites}.
func (h *Handler) ListAccountSection(c *gin.Context) {
	_, span := startRequestSpan(c)
	defer span.End()

	c.JSON(http.StatusOK, gin.H{
		"section": path.Base(c.FullPath()),
		"userId":  h.sessions.State().UserID,
		"items":   []any{},
	})
}

func writeAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logicv1.ErrInvalidCredentials):
		c.JSON(http.StatusForbidden, gin.H{"error": "Current password is incorrect"})
	case errors.Is(err, logicv1.ErrUnauthenticated), errors.Is(err, logicv1.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
	case errors.Is(err, logicv1.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Identity service unavailable"})
	}
}
