package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrolog"
	"macrolog/oauth"
	"macrolog/parser"
)

// fakeGoogle records the last form posted to the token endpoint and answers with a fixed
// status and body.
type fakeGoogle struct {
	status int
	body   string
	form   url.Values
}

func (g *fakeGoogle) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		g.form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(g.status)
		_, _ = w.Write([]byte(g.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeParser struct {
	res      macrolog.ParseResult
	err      error
	provider parser.Provider
	apiKey   string
	input    string
}

func (p *fakeParser) Parse(_ context.Context, provider parser.Provider, apiKey, input string) (macrolog.ParseResult, error) {
	p.provider, p.apiKey, p.input = provider, apiKey, input
	return p.res, p.err
}

func post(t *testing.T, h http.Handler, route string, body any) (int, map[string]any) {
	t.Helper()
	var b []byte
	switch v := body.(type) {
	case string:
		b = []byte(v)
	default:
		var err error
		b, err = json.Marshal(v)
		require.NoError(t, err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, route, bytes.NewReader(b)))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

var validExchange = oauth.ExchangeRequest{
	ClientID:     "client-id",
	ClientSecret: "client-secret",
	Code:         "auth-code",
	CodeVerifier: "verifier-123",
	RedirectURI:  "http://127.0.0.1:8085/callback",
}

func TestTokenExchange(t *testing.T) {
	g := &fakeGoogle{status: http.StatusOK, body: `{"access_token":"ya29.a","refresh_token":"1//r","expires_in":3599,"token_type":"Bearer"}`}
	h := NewHandler(Options{TokenURL: g.server(t).URL})

	status, out := post(t, h, TokenRoute, validExchange)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ya29.a", out["accessToken"])
	assert.Equal(t, "1//r", out["refreshToken"])
	assert.InDelta(t, 3599, out["expiresIn"], 2)

	assert.Equal(t, "authorization_code", g.form.Get("grant_type"))
	assert.Equal(t, "auth-code", g.form.Get("code"))
	assert.Equal(t, "verifier-123", g.form.Get("code_verifier"))
	assert.Equal(t, "client-id", g.form.Get("client_id"))
	assert.Equal(t, "client-secret", g.form.Get("client_secret"))
	assert.Equal(t, "http://127.0.0.1:8085/callback", g.form.Get("redirect_uri"))
}

func TestTokenExchangeMissingFields(t *testing.T) {
	h := NewHandler(Options{TokenURL: "http://127.0.0.1:1/unused"})

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"invalid json", "{not json", "clientId"},
		{"client id", oauth.ExchangeRequest{}, "clientId"},
		{"client secret", oauth.ExchangeRequest{ClientID: "c"}, "clientSecret"},
		{"code", oauth.ExchangeRequest{ClientID: "c", ClientSecret: "s"}, "code"},
		{"verifier", oauth.ExchangeRequest{ClientID: "c", ClientSecret: "s", Code: "x"}, "codeVerifier"},
		{"redirect", oauth.ExchangeRequest{ClientID: "c", ClientSecret: "s", Code: "x", CodeVerifier: "v"}, "redirectUri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := post(t, h, TokenRoute, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "Missing required field: "+tt.field, out["error"])
		})
	}
}

func TestTokenEndpointFailures(t *testing.T) {
	tests := []struct {
		name       string
		route      string
		body       any
		status     int
		google     string
		wantStatus int
		wantError  string
		wantReason any
	}{
		{
			name: "exchange invalid grant", route: TokenRoute, body: validExchange,
			status: http.StatusBadRequest, google: `{"error":"invalid_grant"}`,
			wantStatus: http.StatusUnauthorized, wantError: msgCodeExpired, wantReason: "invalid_grant",
		},
		{
			name: "exchange invalid client", route: TokenRoute, body: validExchange,
			status: http.StatusUnauthorized, google: `{"error":"invalid_client"}`,
			wantStatus: http.StatusUnauthorized, wantError: msgInvalidClient, wantReason: "invalid_client",
		},
		{
			name: "exchange other rejection", route: TokenRoute, body: validExchange,
			status: http.StatusBadRequest, google: `{"error":"invalid_request"}`,
			wantStatus: http.StatusBadRequest, wantError: msgInvalidClient,
		},
		{
			name: "exchange upstream 5xx", route: TokenRoute, body: validExchange,
			status: http.StatusServiceUnavailable, google: `{"error":"backend_error"}`,
			wantStatus: http.StatusBadGateway, wantError: msgUnavailable,
		},
		{
			name: "refresh revoked", route: RefreshRoute,
			body:   oauth.RefreshRequest{ClientID: "c", ClientSecret: "s", RefreshToken: "1//r"},
			status: http.StatusBadRequest, google: `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`,
			wantStatus: http.StatusUnauthorized, wantError: msgRefreshRevoked, wantReason: "invalid_grant",
		},
		{
			name: "refresh other rejection", route: RefreshRoute,
			body:   oauth.RefreshRequest{ClientID: "c", ClientSecret: "s", RefreshToken: "1//r"},
			status: http.StatusBadRequest, google: `{"error":"unauthorized_client"}`,
			wantStatus: http.StatusUnauthorized, wantError: msgInvalidClient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGoogle{status: tt.status, body: tt.google}
			h := NewHandler(Options{TokenURL: g.server(t).URL})

			status, out := post(t, h, tt.route, tt.body)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantError, out["error"])
			assert.Equal(t, tt.wantReason, out["reason"])
		})
	}
}

func TestTokenEndpointUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL
	srv.Close()
	h := NewHandler(Options{TokenURL: tokenURL})

	status, out := post(t, h, RefreshRoute, oauth.RefreshRequest{ClientID: "c", ClientSecret: "s", RefreshToken: "r"})

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, msgUnavailable, out["error"])
}

func TestRefresh(t *testing.T) {
	g := &fakeGoogle{status: http.StatusOK, body: `{"access_token":"ya29.b","expires_in":3600,"token_type":"Bearer"}`}
	h := NewHandler(Options{TokenURL: g.server(t).URL})

	status, out := post(t, h, RefreshRoute, oauth.RefreshRequest{ClientID: "c", ClientSecret: "s", RefreshToken: "1//r"})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ya29.b", out["accessToken"])
	assert.InDelta(t, 3600, out["expiresIn"], 2)
	assert.NotContains(t, out, "refreshToken")
	assert.Equal(t, "refresh_token", g.form.Get("grant_type"))
	assert.Equal(t, "1//r", g.form.Get("refresh_token"))

	status, out = post(t, h, RefreshRoute, oauth.RefreshRequest{ClientID: "c", ClientSecret: "s"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required field: refreshToken", out["error"])
}

func TestParseRoute(t *testing.T) {
	lunch := macrolog.ParseResult{
		MealLabel: "Lunch",
		Items:     []macrolog.ParsedItem{{Description: "Chicken", Calories: 300, ProteinG: 30, FatG: 10}},
	}

	t.Run("success defaults to claude", func(t *testing.T) {
		p := &fakeParser{res: lunch}
		h := NewHandler(Options{Parser: p})

		status, out := post(t, h, ParseRoute, ParseRequest{APIKey: "sk-1", Input: "chicken"})

		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, parser.Claude, p.provider)
		assert.Equal(t, "sk-1", p.apiKey)
		assert.Equal(t, "chicken", p.input)
		assert.Equal(t, "Lunch", out["meal_label"])
		require.Len(t, out["items"], 1)
	})

	t.Run("keyless provider", func(t *testing.T) {
		p := &fakeParser{res: lunch}
		h := NewHandler(Options{Parser: p})

		status, _ := post(t, h, ParseRoute, ParseRequest{Provider: parser.Mock, Input: "chicken"})

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, parser.Mock, p.provider)
	})

	tests := []struct {
		name       string
		body       any
		err        error
		wantStatus int
		wantError  string
		wantRetry  any
	}{
		{name: "invalid json", body: "{", wantStatus: http.StatusBadRequest, wantError: msgInvalidJSON},
		{name: "missing key", body: ParseRequest{Input: "x"}, wantStatus: http.StatusBadRequest, wantError: "Missing required field: apiKey"},
		{name: "missing input", body: ParseRequest{APIKey: "k"}, wantStatus: http.StatusBadRequest, wantError: "Missing required field: input"},
		{
			name: "invalid key", body: ParseRequest{APIKey: "k", Input: "x"},
			err:        &macrolog.AuthError{Status: 401, Message: "bad key"},
			wantStatus: http.StatusUnauthorized, wantError: msgInvalidAPIKey,
		},
		{
			name: "rate limited with hint", body: ParseRequest{APIKey: "k", Input: "x"},
			err:        &macrolog.RateLimitError{RetryAfter: 12 * time.Second},
			wantStatus: http.StatusTooManyRequests, wantError: msgRateLimited, wantRetry: float64(12),
		},
		{
			name: "rate limited without hint", body: ParseRequest{APIKey: "k", Input: "x"},
			err:        &macrolog.RateLimitError{},
			wantStatus: http.StatusTooManyRequests, wantError: msgRateLimited, wantRetry: float64(30),
		},
		{
			name: "unknown provider", body: ParseRequest{Provider: "grok", APIKey: "k", Input: "x"},
			err:        &macrolog.ValidationError{Field: "provider", Message: `unknown provider "grok"`},
			wantStatus: http.StatusBadRequest, wantError: `provider: unknown provider "grok"`,
		},
		{
			name: "upstream failure", body: ParseRequest{APIKey: "k", Input: "x"},
			err:        &macrolog.NetworkError{Op: "claude", Err: errors.New("connection reset")},
			wantStatus: http.StatusBadGateway, wantError: msgAIUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Options{Parser: &fakeParser{err: tt.err}})

			status, out := post(t, h, ParseRoute, tt.body)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantError, out["error"])
			assert.Equal(t, tt.wantRetry, out["retryAfter"])
		})
	}
}

func TestServeHTTPRejectsOtherMethodsAndRoutes(t *testing.T) {
	h := NewHandler(Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ParseRoute, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	status, out := post(t, h, "/api/unknown", "{}")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", out["error"])
}

func TestHandleLambda(t *testing.T) {
	p := &fakeParser{res: macrolog.ParseResult{MealLabel: "Meal", Items: []macrolog.ParsedItem{{Description: "Rice", Calories: 200}}}}
	h := NewHandler(Options{Parser: p})
	body := `{"provider":"mock","input":"rice"}`

	tests := []struct {
		name string
		req  events.APIGatewayV2HTTPRequest
	}{
		{"plain body", events.APIGatewayV2HTTPRequest{RawPath: ParseRoute, Body: body}},
		{"base64 body", events.APIGatewayV2HTTPRequest{RawPath: ParseRoute, Body: base64.StdEncoding.EncodeToString([]byte(body)), IsBase64Encoded: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.RequestContext.HTTP.Method = http.MethodPost
			resp, err := h.HandleLambda(context.Background(), tt.req)
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Headers["Content-Type"])
			assert.JSONEq(t, `{"meal_label":"Meal","items":[{"description":"Rice","calories":200,"protein_g":0,"carbs_g":0,"fat_g":0}]}`, resp.Body)
			assert.Equal(t, "rice", p.input)
		})
	}

	resp, err := h.HandleLambda(context.Background(), events.APIGatewayV2HTTPRequest{
		RawPath:         ParseRoute,
		Body:            "!!not base64",
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
