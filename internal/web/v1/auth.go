package v1

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/internal/logger"
	logicv1 "github.com/duynhne/travel-portal/internal/logic/v1"
)

// SessionCookieName carries the dashboard credential issued at login.
// Non-browser clients may send the same token as a bearer token.
const SessionCookieName = "portal_session"

// sessionToken returns the credential presented by the caller, if any.
func sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookieName); err == nil && token != "" {
		return token
	}
	if auth := c.GetHeader("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func setSessionCookie(c *gin.Context, token string, maxAge int) {
	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookieName, token, maxAge, "/", "", secure, true)
}

// sessionInfo is the public part of a created session.
type sessionInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// loginResponse is returned by a successful login.
type loginResponse struct {
	Session sessionInfo           `json:"session"`
	State   logicv1.SessionState `json:"state"`
}

// Login handles HTTP request for dashboard login.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	log := logger.FromContext(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		log.Warn().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	session, token, err := h.sessions.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("Login failed")

		switch {
		case errors.Is(err, logicv1.ErrInvalidCredentials), errors.Is(err, logicv1.ErrUserNotFound):
			// Don't reveal whether the account exists.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, logicv1.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Identity service unavailable"})
		}
		return
	}
	if session == nil {
		log.Warn().Msg("Login created a session without a resolvable profile")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account profile unavailable"})
		return
	}

	maxAge := 0
	if !session.ExpiresAt.IsZero() {
		maxAge = max(int(time.Until(session.ExpiresAt).Seconds()), 1)
	}
	setSessionCookie(c, token, maxAge)

	state := h.sessions.State()
	log.Info().Str("user_id", session.UserID).Msg("Login successful")
	c.JSON(http.StatusOK, loginResponse{
		Session: sessionInfo{ID: session.ID, UserID: session.UserID, ExpiresAt: session.ExpiresAt},
		State:   state,
	})
}

// Logout handles HTTP request to end the dashboard session.
func (h *Handler) Logout(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	log := logger.FromContext(ctx)

	if err := h.sessions.Logout(ctx); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("Logout failed")

		switch {
		case errors.Is(err, logicv1.ErrSessionNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No active session"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Identity service unavailable, session may still be active"})
		}
		return
	}

	setSessionCookie(c, "", -1)
	log.Info().Msg("Logout successful")
	c.JSON(http.StatusOK, h.sessions.State())
}

// Refresh re-reads the signed-in user from the identity backend.
func (h *Handler) Refresh(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	h.sessions.RefreshUser(ctx)
	c.JSON(http.StatusOK, h.sessions.State())
}

// GetSession returns the session state, checking it first when stale.
// Callers without the login credential see it as signed out.
// GET /api/v1/auth/session
func (h *Handler) GetSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	h.sessions.CheckAuth(ctx, false)
	state := h.sessions.State()
	if !h.sessions.Authorize(sessionToken(c)) {
		state.User = nil
		state.IsAuthenticated = false
		state.LastFetch = time.Time{}
	}
	span.SetAttributes(attribute.Bool("session.authenticated", state.IsAuthenticated))
	c.JSON(http.StatusOK, state)
}
