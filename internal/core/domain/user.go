package domain

import "time"

// User is the authenticated principal's profile as reported by the identity backend.
type User struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Email string         `json:"email"`
	Prefs map[string]any `json:"prefs,omitempty"`
}

// Session is a backend-issued credential obtained by logging in.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginRequest represents the payload for dashboard login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateNameRequest represents the payload for changing the profile name.
type UpdateNameRequest struct {
	Name string `json:"name" binding:"required,max=128"`
}

// UpdatePasswordRequest represents the payload for changing the password.
// OldPassword may be empty when the backend does not require it.
type UpdatePasswordRequest struct {
	Password    string `json:"password" binding:"required,min=8"`
	OldPassword string `json:"oldPassword"`
}
