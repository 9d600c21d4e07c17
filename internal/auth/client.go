package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Client talks to the auth endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(LoginRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	if !resp.Auth {
		return "", ErrInvalidCredentials
	}
	return resp.Token, nil
}

// Validate reports whether token is still accepted.
func (c *Client) Validate(ctx context.Context, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/auth/validate-token", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "bearer "+token)
	resp, err := c.do(req)
	if err != nil {
		return false, err
	}
	return resp.Auth, nil
}

func (c *Client) do(req *http.Request) (Response, error) {
	res, err := c.httpClient().Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	var out Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("%s %s: decode response (status %d): %w", req.Method, req.URL.Path, res.StatusCode, err)
	}
	if res.StatusCode >= 500 {
		return Response{}, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, res.StatusCode, out.Msg)
	}
	return out, nil
}

// TokenFile persists a token between runs.
type TokenFile string

// Load returns the stored token, or "" when there is none.
func (f TokenFile) Load() (string, error) {
	data, err := os.ReadFile(string(f))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the token, readable by the owner only.
func (f TokenFile) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(string(f)), 0o700); err != nil {
		return err
	}
	return os.WriteFile(string(f), []byte(token+"\n"), 0o600)
}
