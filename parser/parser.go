package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"macrolog"
)

type Provider string

const (
	Claude  Provider = "claude"
	OpenAI  Provider = "openai"
	Gemini  Provider = "gemini"
	Bedrock Provider = "bedrock"
	Ollama  Provider = "ollama"
	Mock    Provider = "mock"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Claude, OpenAI, Gemini, Bedrock, Ollama, Mock:
		return p, nil
	}
	return "", &macrolog.ValidationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", s)}
}

// NeedsAPIKey reports whether requests to p carry a user-supplied key.
func (p Provider) NeedsAPIKey() bool {
	switch p {
	case Claude, OpenAI, Gemini:
		return true
	}
	return false
}

// Adapter turns free text into a structured meal using one AI provider.
type Adapter interface {
	Parse(ctx context.Context, apiKey, systemPrompt, input string) (macrolog.ParseResult, error)
}

// Registry maps provider names to adapters.
type Registry map[Provider]Adapter

// RegistryOptions selects models and transports for the built-in adapters. Bedrock is only
// registered when a runtime client is supplied.
type RegistryOptions struct {
	Providers  macrolog.ProviderConfig
	Model      macrolog.ModelConfig
	HTTPClient macrolog.HTTPClient
	Bedrock    bedrockRuntimeClient
}

// NewRegistry registers every adapter the options allow.
func NewRegistry(opts RegistryOptions) Registry {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	r := Registry{
		Claude: NewClaudeAdapter(ClaudeOptions{Model: opts.Providers.ClaudeModel, HTTPClient: opts.HTTPClient}),
		OpenAI: NewOpenAIAdapter(OpenAIOptions{Model: opts.Providers.OpenAIModel, HTTPClient: opts.HTTPClient}),
		Gemini: NewGeminiAdapter(GeminiOptions{Model: opts.Providers.GeminiModel, HTTPClient: opts.HTTPClient}),
		Ollama: NewOllamaAdapter(OllamaOptions{
			BaseEndpoint: opts.Providers.BaseOllamaEndpoint,
			Model:        opts.Providers.OllamaModel,
			HTTPClient:   opts.HTTPClient,
		}),
		Mock: NewMockAdapter(),
	}
	if opts.Bedrock != nil {
		r[Bedrock] = NewBedrockAdapter(opts.Bedrock, BedrockOptions{
			ModelID:     opts.Model.ModelID,
			MaxTokens:   opts.Model.MaxTokens,
			Temperature: opts.Model.Temperature,
			TopP:        opts.Model.TopP,
		})
	}
	return r
}

// Providers lists the registered providers in name order.
func (r Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Parse runs input through the named provider and normalizes the result. An invalid key
// surfaces as *macrolog.AuthError and throttling as *macrolog.RateLimitError.
func (r Registry) Parse(ctx context.Context, provider Provider, apiKey, input string) (macrolog.ParseResult, error) {
	adapter, ok := r[provider]
	if !ok {
		return macrolog.ParseResult{}, &macrolog.ValidationError{Field: "provider", Message: fmt.Sprintf("provider %q is not available", provider)}
	}
	if strings.TrimSpace(input) == "" {
		return macrolog.ParseResult{}, &macrolog.ValidationError{Field: "input", Message: "must not be empty"}
	}
	if provider.NeedsAPIKey() && strings.TrimSpace(apiKey) == "" {
		return macrolog.ParseResult{}, &macrolog.ValidationError{Field: "apiKey", Message: "must not be empty"}
	}

	start := time.Now()
	res, err := adapter.Parse(ctx, apiKey, SystemPrompt, input)
	if err != nil {
		slog.Warn("PARSER: provider failed", "provider", provider, "error", err)
		return macrolog.ParseResult{}, err
	}
	if !res.IsValid() {
		return macrolog.ParseResult{}, fmt.Errorf("%s returned an invalid parse result", provider)
	}

	res = res.Normalize()
	slog.Info("PARSER: parsed input", "provider", provider, "items", len(res.Items), "meal_label", res.MealLabel, "duration", time.Since(start))
	return res, nil
}

// statusError classifies a non-200 provider response.
func statusError(provider Provider, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &macrolog.AuthError{Status: resp.StatusCode, Message: fmt.Sprintf("%s rejected the API key", provider)}
	case http.StatusTooManyRequests:
		return &macrolog.RateLimitError{RetryAfter: retryAfter(resp.Header), Message: fmt.Sprintf("%s rate limit", provider)}
	}
	return fmt.Errorf("%s API %d: %s", provider, resp.StatusCode, msg)
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// send posts a JSON body and returns the response body of a 200 reply.
func send(ctx context.Context, client macrolog.HTTPClient, provider Provider, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &macrolog.NetworkError{Op: fmt.Sprintf("reach %s API", provider), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(provider, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &macrolog.NetworkError{Op: fmt.Sprintf("read %s response", provider), Err: err}
	}
	return body, nil
}
