package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"macrolog"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ExchangeRequest is the body of the proxy token-exchange call.
type ExchangeRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURI  string `json:"redirectUri"`
}

type ExchangeResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// RefreshRequest is the body of the proxy token-refresh call.
type RefreshRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// ErrorBody is the JSON error envelope returned by the proxy.
type ErrorBody struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

const (
	TokenPath   = "/api/oauth/token"
	RefreshPath = "/api/oauth/refresh"
)

// Client calls the server-side proxy that holds the token endpoint conversation, so the
// client secret never travels to Google from untrusted code.
type Client struct {
	baseURL    string
	httpClient doer
}

func NewClient(baseURL string, httpClient doer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Exchange trades an authorization code for a token pair. It is one-shot; failures are
// returned as the proxy reported them.
func (c *Client) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error) {
	var out ExchangeResponse
	if err := c.post(ctx, TokenPath, req, &out); err != nil {
		return ExchangeResponse{}, err
	}
	slog.Info("OAUTH: exchanged authorization code", "expires_in", out.ExpiresIn)
	return out, nil
}

// Refresh obtains a new access token. No new refresh token is expected back.
func (c *Client) Refresh(ctx context.Context, req RefreshRequest) (RefreshResponse, error) {
	var out RefreshResponse
	if err := c.post(ctx, RefreshPath, req, &out); err != nil {
		return RefreshResponse{}, err
	}
	slog.Info("OAUTH: refreshed access token", "expires_in", out.ExpiresIn)
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &macrolog.NetworkError{Op: "oauth proxy " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body ErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		slog.Warn("OAUTH: proxy rejected request", "path", path, "status", resp.StatusCode, "error", body.Error)
		return proxyError(path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode oauth proxy response: %w", err)
	}
	return nil
}

func proxyError(path string, status int, body ErrorBody) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		msg := body.Error
		if body.Reason != "" {
			msg = fmt.Sprintf("%s (%s)", body.Error, body.Reason)
		}
		return &macrolog.AuthError{Status: status, Message: msg}
	case status == http.StatusTooManyRequests:
		return &macrolog.RateLimitError{RetryAfter: time.Duration(body.RetryAfter) * time.Second, Message: body.Error}
	case status >= 500:
		return &macrolog.NetworkError{Op: "oauth proxy " + path, Err: errors.New(body.Error)}
	default:
		return &macrolog.ValidationError{Message: body.Error}
	}
}
