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
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"
)

type OpenAIOptions struct {
	BaseURL    string
	Model      string
	HTTPClient macrolog.HTTPClient
}

// OpenAIAdapter calls Chat Completions with parse_food_items as the required function.
type OpenAIAdapter struct {
	opts OpenAIOptions
}

func NewOpenAIAdapter(opts OpenAIOptions) *OpenAIAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOpenAIBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultOpenAIModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &OpenAIAdapter{opts: opts}
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []openAITool  `json:"tools"`
	ToolChoice openAITool    `json:"tool_choice"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *OpenAIAdapter) Parse(ctx context.Context, apiKey, systemPrompt, input string) (macrolog.ParseResult, error) {
	schema, err := schemaMap()
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	payload, err := json.Marshal(openAIRequest{
		Model: a.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: input},
		},
		Tools: []openAITool{{
			Type:     "function",
			Function: openAIFunction{Name: ToolName, Description: ToolDescription, Parameters: schema},
		}},
		ToolChoice: openAITool{Type: "function", Function: openAIFunction{Name: ToolName}},
	})
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return macrolog.ParseResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := send(ctx, a.opts.HTTPClient, OpenAI, req)
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return macrolog.ParseResult{}, fmt.Errorf("failed to parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return macrolog.ParseResult{}, fmt.Errorf("unexpected openai response structure: no tool_calls in response")
	}
	return decodeToolInput(OpenAI, []byte(resp.Choices[0].Message.ToolCalls[0].Function.Arguments))
}
