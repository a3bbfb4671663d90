package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	logicv1 "github.com/duynhne/travel-portal/internal/logic/v1"
	"github.com/duynhne/travel-portal/middleware"
)

// Handler groups HTTP handlers for the portal API v1.
// Dependencies are injected via the constructor.
type Handler struct {
	sessions *logicv1.SessionManager
	content  *logicv1.ContentService
}

// NewHandler creates a new Handler with the given session manager and content service.
func NewHandler(sessions *logicv1.SessionManager, content *logicv1.ContentService) *Handler {
	return &Handler{sessions: sessions, content: content}
}

// RegisterRoutes registers all API v1 routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	rg.GET("/auth/session", h.GetSession)

	rg.GET("/content/:collection", h.ListContent)
	rg.GET("/content/:collection/:id", h.GetContent)
	rg.GET("/settings", h.GetSettings)

	dashboard := rg.Group("", h.RequireSession())
	{
		dashboard.POST("/auth/logout", h.Logout)
		dashboard.POST("/auth/refresh", h.Refresh)

		dashboard.PATCH("/account/name", h.UpdateName)
		dashboard.PATCH("/account/password", h.UpdatePassword)
		for _, section := range accountSections {
			dashboard.GET("/account/"+section, h.ListAccountSection)
		}

		dashboard.POST("/content/:collection", h.CreateContent)
		dashboard.PUT("/content/:collection/:id", h.UpdateContent)
		dashboard.DELETE("/content/:collection/:id", h.DeleteContent)
		dashboard.PUT("/settings", h.UpdateSettings)
	}
}

// RequireSession rejects requests that do not carry the credential issued
// at login, or arrive while the dashboard session is anonymous. It runs a
// passive session check, so within the freshness window it costs no backend
// call.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middleware.StartSpan(c.Request.Context(), "http.require_session", trace.WithAttributes(
			attribute.String("layer", "web"),
		))
		defer span.End()

		token := sessionToken(c)
		span.SetAttributes(attribute.Bool("auth.present", token != ""))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		}

		h.sessions.CheckAuth(ctx, false)
		if !h.sessions.Authorize(token) {
			span.SetAttributes(attribute.Bool("auth.valid", false))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		}
		span.SetAttributes(attribute.Bool("auth.valid", true))
		c.Next()
	}
}

func startRequestSpan(c *gin.Context) (context.Context, trace.Span) {
	return middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
}
