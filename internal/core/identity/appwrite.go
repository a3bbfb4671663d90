// Package identity implements the remote identity backend: the account API
// of an Appwrite-compatible backend-as-a-service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/duynhne/travel-portal/internal/core/domain"
)

const (
	projectHeader = "X-Appwrite-Project"
	sessionHeader = "X-Appwrite-Session"
)

// Client talks to the account endpoints of the backend. The session it
// creates is held in a cookie jar (and, when the backend returns one, as a
// session secret), so a Client represents exactly one signed-in account.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client

	mu     sync.Mutex
	secret string
}

// New creates a new identity backend client.
func New(baseURL, projectID string, timeout time.Duration) *Client {
	jar, _ := cookiejar.New(nil) // only fails on a bad PublicSuffixList
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

type accountResponse struct {
	ID    string         `json:"$id"`
	Name  string         `json:"name"`
	Email string         `json:"email"`
	Prefs map[string]any `json:"prefs"`
}

func (a accountResponse) toUser() *domain.User {
	u := &domain.User{ID: a.ID, Name: a.Name, Email: a.Email}
	if len(a.Prefs) > 0 {
		u.Prefs = a.Prefs
	}
	return u
}

type sessionResponse struct {
	ID     string    `json:"$id"`
	UserID string    `json:"userId"`
	Expire time.Time `json:"expire"`
	Secret string    `json:"secret"`
}

// CreateSession signs in with email and password.
func (c *Client) CreateSession(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]string{"email": email, "password": password}

	var s sessionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/account/sessions/email", body, &s); err != nil {
		return nil, fmt.Errorf("identity.CreateSession: %w", err)
	}

	c.mu.Lock()
	c.secret = s.Secret
	c.mu.Unlock()

	return &domain.Session{ID: s.ID, UserID: s.UserID, ExpiresAt: s.Expire}, nil
}

// GetCurrentUser returns the signed-in account, or (nil, nil) when the
// backend reports no session.
func (c *Client) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	var a accountResponse
	if err := c.doRequest(ctx, http.MethodGet, "/account", nil, &a); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity.GetCurrentUser: %w", err)
	}
	return a.toUser(), nil
}

// DeleteCurrentSession signs out of the current session.
func (c *Client) DeleteCurrentSession(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/account/sessions/current", nil, nil); err != nil {
		return fmt.Errorf("identity.DeleteCurrentSession: %w", err)
	}

	c.mu.Lock()
	c.secret = ""
	c.mu.Unlock()

	return nil
}

// UpdateName changes the account's display name.
func (c *Client) UpdateName(ctx context.Context, name string) (*domain.User, error) {
	var a accountResponse
	if err := c.doRequest(ctx, http.MethodPatch, "/account/name", map[string]string{"name": name}, &a); err != nil {
		return nil, fmt.Errorf("identity.UpdateName: %w", err)
	}
	return a.toUser(), nil
}

// UpdatePassword changes the account's password.
func (c *Client) UpdatePassword(ctx context.Context, newPassword, oldPassword string) (*domain.User, error) {
	body := map[string]string{"password": newPassword}
	if oldPassword != "" {
		body["oldPassword"] = oldPassword
	}

	var a accountResponse
	if err := c.doRequest(ctx, http.MethodPatch, "/account/password", body, &a); err != nil {
		return nil, fmt.Errorf("identity.UpdatePassword: %w", err)
	}
	return a.toUser(), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(projectHeader, c.projectID)

	c.mu.Lock()
	if c.secret != "" {
		req.Header.Set(sessionHeader, c.secret)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Type: apiErr.Type, Message: apiErr.Message}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
