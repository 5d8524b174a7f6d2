// Package authclient talks to the SAIL authentication REST API.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sail-program/sail-gateway/internal/domain"
)

// Endpoint paths relative to the API base URL.
const (
	PathLogin    = "/token/"
	PathVerify   = "/token/verify/"
	PathRefresh  = "/token/refresh/"
	PathRegister = "/sail/auth/register/"
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("auth api returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("auth api returned %d", e.Status)
}

// IsRejection reports whether err is an explicit non-2xx answer from the API,
// as opposed to a transport failure.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// TokenResponse is the body returned by login and registration.
type TokenResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    domain.User `json:"user"`
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Role             string `json:"role"`
	OrganizationName string `json:"organization_name,omitempty"`
}

// Client calls the auth API. Deadlines come from the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for baseURL. A nil httpClient uses a default one
// without its own timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges a username (or email) and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	var out TokenResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.post(ctx, PathLogin, body, &out); err != nil {
		return nil, err
	}
	if out.Access == "" {
		return nil, errors.New("login response missing access token")
	}
	return &out, nil
}

// Register creates an account and returns its token pair.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.post(ctx, PathRegister, req, &out); err != nil {
		return nil, err
	}
	if out.Access == "" {
		return nil, errors.New("register response missing access token")
	}
	return &out, nil
}

// Verify returns nil when the API accepts token.
func (c *Client) Verify(ctx context.Context, token string) error {
	return c.post(ctx, PathVerify, map[string]string{"token": token}, nil)
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var out struct {
		Access string `json:"access"`
	}
	if err := c.post(ctx, PathRefresh, map[string]string{"refresh": refreshToken}, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", &APIError{Status: http.StatusOK, Detail: "refresh response missing access token"}
	}
	return out.Access, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Detail: errorDetail(raw)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorDetail extracts the message Django REST framework style APIs put in
// "detail", "message" or "error".
func errorDetail(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
