package parser

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"macrolog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	res    macrolog.ParseResult
	err    error
	inputs []string
	prompt string
}

func (s *stubAdapter) Parse(_ context.Context, _ string, systemPrompt, input string) (macrolog.ParseResult, error) {
	s.inputs = append(s.inputs, input)
	s.prompt = systemPrompt
	return s.res, s.err
}

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"claude", "OpenAI", " gemini ", "bedrock", "ollama", "mock"} {
		_, err := ParseProvider(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseProvider("llama")
	var ve *macrolog.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRegistryParse(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes result", func(t *testing.T) {
		stub := &stubAdapter{res: macrolog.ParseResult{
			MealLabel: "  ",
			Items:     []macrolog.ParsedItem{{Description: " Oatmeal ", Calories: 149.6, ProteinG: 5.04, CarbsG: 27.25, FatG: 2.51}},
		}}
		r := Registry{Claude: stub}

		res, err := r.Parse(ctx, Claude, "key", "oatmeal")
		require.NoError(t, err)
		assert.Equal(t, "Meal", res.MealLabel)
		assert.Equal(t, macrolog.ParsedItem{Description: "Oatmeal", Calories: 150, ProteinG: 5, CarbsG: 27.3, FatG: 2.5}, res.Items[0])
		assert.Equal(t, SystemPrompt, stub.prompt)
	})

	t.Run("rejects invalid results", func(t *testing.T) {
		r := Registry{Claude: &stubAdapter{res: macrolog.ParseResult{Items: []macrolog.ParsedItem{{Description: "x", Calories: -1}}}}}
		_, err := r.Parse(ctx, Claude, "key", "x")
		assert.Error(t, err)

		r = Registry{Claude: &stubAdapter{res: macrolog.ParseResult{}}}
		_, err = r.Parse(ctx, Claude, "key", "x")
		assert.Error(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		stub := &stubAdapter{}
		r := Registry{Claude: stub, Mock: stub}
		var ve *macrolog.ValidationError

		_, err := r.Parse(ctx, Gemini, "key", "x")
		assert.ErrorAs(t, err, &ve)
		_, err = r.Parse(ctx, Claude, "key", "   ")
		assert.ErrorAs(t, err, &ve)
		_, err = r.Parse(ctx, Claude, "", "x")
		assert.ErrorAs(t, err, &ve)
		assert.Empty(t, stub.inputs)
	})

	t.Run("errors pass through unchanged", func(t *testing.T) {
		authErr := &macrolog.AuthError{Status: 401, Message: "bad key"}
		r := Registry{OpenAI: &stubAdapter{err: authErr}}
		_, err := r.Parse(ctx, OpenAI, "key", "x")
		assert.Same(t, authErr, err)
	})
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	assert.Equal(t, []Provider{Claude, Gemini, Mock, Ollama, OpenAI}, r.Providers())

	r = NewRegistry(RegistryOptions{Bedrock: &fakeBedrock{}})
	assert.Contains(t, r.Providers(), Bedrock)
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, nil, func(t *testing.T, err error) {
			assert.True(t, macrolog.IsAuthError(err))
		}},
		{"rate limited", http.StatusTooManyRequests, http.Header{"Retry-After": []string{"12"}}, func(t *testing.T, err error) {
			var re *macrolog.RateLimitError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 12*time.Second, re.RetryAfter)
		}},
		{"server error", http.StatusInternalServerError, nil, func(t *testing.T, err error) {
			assert.False(t, macrolog.IsAuthError(err))
			assert.False(t, macrolog.IsRateLimited(err))
			assert.Contains(t, err.Error(), "claude API 500")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header()[k] = v
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			a := NewClaudeAdapter(ClaudeOptions{BaseURL: srv.URL})
			_, err := a.Parse(context.Background(), "key", SystemPrompt, "x")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	a := NewOpenAIAdapter(OpenAIOptions{BaseURL: srv.URL})
	_, err := a.Parse(context.Background(), "key", SystemPrompt, "x")
	var ne *macrolog.NetworkError
	assert.ErrorAs(t, err, &ne)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestFoodItemsSchema(t *testing.T) {
	m, err := schemaMap()
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
	assert.ElementsMatch(t, []any{"meal_label", "items"}, m["required"])

	props := m["properties"].(map[string]any)
	items := props["items"].(map[string]any)["items"].(map[string]any)
	assert.ElementsMatch(t, []any{"description", "calories", "protein_g", "carbs_g", "fat_g"}, items["required"])
}

func readJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&m))
	return m
}
