package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"macrolog"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.0-flash"
)

type GeminiOptions struct {
	BaseURL    string
	Model      string
	HTTPClient macrolog.HTTPClient
}

// GeminiAdapter calls generateContent with function calling restricted to parse_food_items.
type GeminiAdapter struct {
	opts GeminiOptions
}

func NewGeminiAdapter(opts GeminiOptions) *GeminiAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGeminiBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &GeminiAdapter{opts: opts}
}

type geminiPart struct {
	Text         string          `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
}

type geminiFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (a *GeminiAdapter) Parse(ctx context.Context, apiKey, systemPrompt, input string) (macrolog.ParseResult, error) {
	schema, err := schemaMap()
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"system_instruction": geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		"contents":           []geminiContent{{Role: "user", Parts: []geminiPart{{Text: input}}}},
		"tools": []map[string]any{{
			"functionDeclarations": []openAIFunction{{Name: ToolName, Description: ToolDescription, Parameters: schema}},
		}},
		"tool_config": map[string]any{
			"function_calling_config": map[string]any{
				"mode":                   "ANY",
				"allowed_function_names": []string{ToolName},
			},
		},
	})
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.opts.BaseURL, a.opts.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return macrolog.ParseResult{}, err
	}
	req.Header.Set("x-goog-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := send(ctx, a.opts.HTTPClient, Gemini, req)
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	var resp struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return macrolog.ParseResult{}, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.FunctionCall != nil {
				return decodeToolInput(Gemini, part.FunctionCall.Args)
			}
		}
	}
	return macrolog.ParseResult{}, fmt.Errorf("unexpected gemini response structure: no functionCall part")
}
