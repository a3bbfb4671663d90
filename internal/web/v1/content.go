package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/internal/logger"
	logicv1 "github.com/duynhne/travel-portal/internal/logic/v1"
)

// ListContent handles GET /api/v1/content/:collection.
func (h *Handler) ListContent(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	docs, err := h.content.List(ctx, c.Param("collection"))
	if err != nil {
		span.RecordError(err)
		writeContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": docs})
}

// GetContent handles GET /api/v1/content/:collection/:id.
func (h *Handler) GetContent(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	doc, err := h.content.Get(ctx, c.Param("collection"), c.Param("id"))
	if err != nil {
		span.RecordError(err)
		writeContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// CreateContent handles POST /api/v1/content/:collection.
func (h *Handler) CreateContent(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	var in domain.DocumentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.content.Create(ctx, c.Param("collection"), in)
	if err != nil {
		span.RecordError(err)
		writeContentError(c, err)
		return
	}

	logger.FromContext(ctx).Info().Str("collection", doc.Collection).Str("id", doc.ID).Msg("Content created")
	c.JSON(http.StatusCreated, doc)
}

// UpdateContent handles PUT /api/v1/content/:collection/:id.
func (h *Handler) UpdateContent(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	var in domain.DocumentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.content.Update(ctx, c.Param("collection"), c.Param("id"), in)
	if err != nil {
		span.RecordError(err)
		writeContentError(c, err)
		return
	}

	logger.FromContext(ctx).Info().Str("collection", doc.Collection).Str("id", doc.ID).Msg("Content updated")
	c.JSON(http.StatusOK, doc)
}

// DeleteContent handles DELETE /api/v1/content/:collection/:id.
func (h *Handler) DeleteContent(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	collection, id := c.Param("collection"), c.Param("id")
	if err := h.content.Delete(ctx, collection, id); err != nil {
		span.RecordError(err)
		writeContentError(c, err)
		return
	}

	logger.FromContext(ctx).Info().Str("collection", collection).Str("id", id).Msg("Content deleted")
	c.Status(http.StatusNoContent)
}

// GetSettings handles GET /api/v1/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	doc, err := h.content.GetSettings(ctx)
	if err != nil {
		span.RecordError(err)
		writeContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// UpdateSettings handles PUT /api/v1/settings. The body is the settings object itself.
func (h *Handler) UpdateSettings(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.content.UpdateSettings(ctx, json.RawMessage(data))
	if err != nil {
		span.RecordError(err)
		writeContentError(c, err)
		return
	}

	logger.FromContext(ctx).Info().Msg("Company settings updated")
	c.JSON(http.StatusOK, doc)
}

func writeContentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logicv1.ErrUnknownCollection):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown collection"})
	case errors.Is(err, logicv1.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	case errors.Is(err, logicv1.ErrInvalidDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Content operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
