// Package v1 provides the portal's business logic for API version 1: the
// dashboard session manager, the self-hosted identity backend and the
// marketing content service.
//
// Error Handling:
// This package defines sentinel errors that represent common failures.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned
// from business logic methods.
//
// Example Usage:
//
//	if row == nil {
//	    return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrDocumentNotFound)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrInvalidCredentials):
//	    c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
//	case errors.Is(err, logicv1.ErrDocumentNotFound):
//	    c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for session and account operations.
var (
	// ErrInvalidCredentials indicates the provided credentials are incorrect.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound indicates the account does not exist.
	// HTTP Status: 401 Unauthorized (don't reveal user existence)
	ErrUserNotFound = errors.New("user not found")

	// ErrUnauthenticated indicates there is no signed-in session.
	// HTTP Status: 401 Unauthorized
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrRateLimited indicates the identity backend throttled the request.
	// HTTP Status: 429 Too Many Requests
	ErrRateLimited = errors.New("rate limited by identity backend")

	// ErrSessionNotFound indicates the session does not exist.
	// HTTP Status: 401 Unauthorized
	ErrSessionNotFound = errors.New("session not found")
)

// Sentinel errors for content operations.
var (
	// ErrUnknownCollection indicates the collection is not a content collection.
	// HTTP Status: 404 Not Found
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrDocumentNotFound indicates the document does not exist.
	// HTTP Status: 404 Not Found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocument indicates the document data is not a JSON object.
	// HTTP Status: 400 Bad Request
	ErrInvalidDocument = errors.New("document data must be a JSON object")
)
