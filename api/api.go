package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"macrolog"
	"macrolog/oauth"
	"macrolog/parser"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	TokenRoute   = oauth.TokenPath
	RefreshRoute = oauth.RefreshPath
	ParseRoute   = "/api/parse"
)

const (
	msgUnavailable      = "OAuth service unavailable"
	msgInvalidClient    = "Invalid OAuth credentials"
	msgCodeExpired      = "Authorization code expired or already used"
	msgRefreshRevoked   = "Refresh token expired or revoked"
	msgInvalidJSON      = "Invalid JSON in request body"
	msgInvalidAPIKey    = "Invalid API key"
	msgRateLimited      = "Rate limited"
	msgAIUnavailable    = "AI service unavailable"
	defaultRetryAfter   = 30
	defaultTokenSeconds = 3600
)

type mealParser interface {
	Parse(ctx context.Context, provider parser.Provider, apiKey, input string) (macrolog.ParseResult, error)
}

// ParseRequest is the body of the parse endpoint. An empty provider means claude.
type ParseRequest struct {
	Provider parser.Provider `json:"provider"`
	APIKey   string          `json:"apiKey"`
	Input    string          `json:"input"`
}

type Options struct {
	// TokenURL is Google's token endpoint.
	TokenURL   string
	HTTPClient *http.Client
	Parser     mealParser
	Tracer     trace.Tracer
	Now        func() time.Time
}

// Handler answers the proxy routes. It holds no per-user state; client credentials arrive
// with every request.
type Handler struct {
	tokenURL   string
	httpClient *http.Client
	parser     mealParser
	tracer     trace.Tracer
	now        func() time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.TokenURL == "" {
		opts.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(macrolog.TracerNameAPI)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		tokenURL:   opts.TokenURL,
		httpClient: opts.HTTPClient,
		parser:     opts.Parser,
		tracer:     opts.Tracer,
		now:        opts.Now,
	}
}

// Handle dispatches one request body to route and returns the status code and the value to
// encode as the JSON response.
func (h *Handler) Handle(ctx context.Context, route string, body []byte) (int, any) {
	ctx, span := h.tracer.Start(ctx, "Handler.Handle", trace.WithAttributes(attribute.String("route", route)))
	defer span.End()

	var (
		status  int
		payload any
	)
	switch route {
	case TokenRoute:
		status, payload = h.token(ctx, body)
	case RefreshRoute:
		status, payload = h.refresh(ctx, body)
	case ParseRoute:
		status, payload = h.parse(ctx, body)
	default:
		status, payload = http.StatusNotFound, oauth.ErrorBody{Error: "Not found"}
	}

	span.SetAttributes(attribute.Int("status", status))
	if status >= 400 {
		if eb, ok := payload.(oauth.ErrorBody); ok {
			span.SetStatus(codes.Error, eb.Error)
		}
	}
	slog.Info("API: handled request", "route", route, "status", status)
	return status, payload
}

func (h *Handler) token(ctx context.Context, body []byte) (int, any) {
	var req oauth.ExchangeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return missing("clientId")
	}
	if name := firstMissing(
		"clientId", req.ClientID,
		"clientSecret", req.ClientSecret,
		"code", req.Code,
		"codeVerifier", req.CodeVerifier,
		"redirectUri", req.RedirectURI,
	); name != "" {
		return missing(name)
	}

	cfg := h.config(req.ClientID, req.ClientSecret, req.RedirectURI)
	tok, err := cfg.Exchange(h.clientContext(ctx), req.Code, oauth2.VerifierOption(req.CodeVerifier))
	if err != nil {
		return tokenFailure(err, msgCodeExpired, http.StatusBadRequest)
	}
	return http.StatusOK, oauth.ExchangeResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    h.expiresIn(tok),
	}
}

func (h *Handler) refresh(ctx context.Context, body []byte) (int, any) {
	var req oauth.RefreshRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return missing("clientId")
	}
	if name := firstMissing(
		"clientId", req.ClientID,
		"clientSecret", req.ClientSecret,
		"refreshToken", req.RefreshToken,
	); name != "" {
		return missing(name)
	}

	cfg := h.config(req.ClientID, req.ClientSecret, "")
	tok, err := cfg.TokenSource(h.clientContext(ctx), &oauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		return tokenFailure(err, msgRefreshRevoked, http.StatusUnauthorized)
	}
	return http.StatusOK, oauth.RefreshResponse{
		AccessToken: tok.AccessToken,
		ExpiresIn:   h.expiresIn(tok),
	}
}

func (h *Handler) parse(ctx context.Context, body []byte) (int, any) {
	var req ParseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, oauth.ErrorBody{Error: msgInvalidJSON}
	}
	if req.Provider == "" {
		req.Provider = parser.Claude
	}
	if req.Provider.NeedsAPIKey() && strings.TrimSpace(req.APIKey) == "" {
		return missing("apiKey")
	}
	if strings.TrimSpace(req.Input) == "" {
		return missing("input")
	}
	if h.parser == nil {
		return http.StatusBadGateway, oauth.ErrorBody{Error: msgAIUnavailable}
	}

	res, err := h.parser.Parse(ctx, req.Provider, req.APIKey, req.Input)
	if err != nil {
		return parseFailure(err)
	}
	return http.StatusOK, res
}

func (h *Handler) config(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  h.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (h *Handler) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
}

func (h *Handler) expiresIn(tok *oauth2.Token) int {
	if tok.ExpiresIn > 0 {
		return int(tok.ExpiresIn)
	}
	if !tok.Expiry.IsZero() {
		return int(tok.Expiry.Sub(h.now()).Round(time.Second) / time.Second)
	}
	return defaultTokenSeconds
}

// tokenFailure maps a token endpoint error. Anything that is not a reply from Google, and
// any 5xx reply, means the service is unavailable.
func tokenFailure(err error, grantMessage string, otherStatus int) (int, any) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil || re.Response.StatusCode >= 500 {
		slog.Error("API: token endpoint unavailable", "error", err)
		return http.StatusBadGateway, oauth.ErrorBody{Error: msgUnavailable}
	}

	slog.Warn("API: token endpoint rejected request", "status", re.Response.StatusCode, "error_code", re.ErrorCode)
	switch re.ErrorCode {
	case "invalid_grant":
		return http.StatusUnauthorized, oauth.ErrorBody{Error: grantMessage, Reason: re.ErrorCode}
	case "invalid_client":
		return http.StatusUnauthorized, oauth.ErrorBody{Error: msgInvalidClient, Reason: re.ErrorCode}
	}
	return otherStatus, oauth.ErrorBody{Error: msgInvalidClient}
}

func parseFailure(err error) (int, any) {
	var (
		ve *macrolog.ValidationError
		rl *macrolog.RateLimitError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, oauth.ErrorBody{Error: ve.Error()}
	case macrolog.IsAuthError(err):
		return http.StatusUnauthorized, oauth.ErrorBody{Error: msgInvalidAPIKey}
	case macrolog.IsRateLimited(err):
		retry := defaultRetryAfter
		if errors.As(err, &rl) && rl.RetryAfter >= time.Second {
			retry = int(rl.RetryAfter / time.Second)
		}
		return http.StatusTooManyRequests, oauth.ErrorBody{Error: msgRateLimited, RetryAfter: retry}
	}
	slog.Error("API: parse failed", "error", err)
	return http.StatusBadGateway, oauth.ErrorBody{Error: msgAIUnavailable}
}

func missing(field string) (int, any) {
	return http.StatusBadRequest, oauth.ErrorBody{Error: fmt.Sprintf("Missing required field: %s", field)}
}

// firstMissing takes name/value pairs and returns the first name with a blank value.
func firstMissing(pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return pairs[i]
		}
	}
	return ""
}
