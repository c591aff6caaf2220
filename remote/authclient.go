package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AuthClient signs users in against the backend's auth endpoints. It is
// separate from Client because it runs before any session exists.
type AuthClient struct {
	base  string
	httpc *http.Client
}

// NewAuthClient creates an AuthClient for baseURL (no trailing slash).
func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AuthClient{base: baseURL, httpc: &http.Client{Timeout: timeout}}
}

// Credentials is the register/login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the auth endpoints' success payload.
type TokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Register creates an account and returns its first token.
func (a *AuthClient) Register(ctx context.Context, username, password string) (*TokenResponse, error) {
	return a.post(ctx, "/api/auth/register", Credentials{Username: username, Password: password})
}

// Login exchanges credentials for a token.
func (a *AuthClient) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	return a.post(ctx, "/api/auth/login", Credentials{Username: username, Password: password})
}

func (a *AuthClient) post(ctx context.Context, path string, body Credentials) (*TokenResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return nil, fmt.Errorf("remote: %s: %s", path, apiErr.Error)
	}

	var out TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote: decode %s: %w", path, err)
	}
	return &out, nil
}
