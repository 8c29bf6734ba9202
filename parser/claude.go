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
	defaultClaudeBaseURL = "https://api.anthropic.com"
	defaultClaudeModel   = "claude-haiku-4-5-20251001"
	anthropicVersion     = "2023-06-01"
)

type ClaudeOptions struct {
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient macrolog.HTTPClient
}

// ClaudeAdapter calls the Anthropic Messages API with parse_food_items as a forced tool.
type ClaudeAdapter struct {
	opts ClaudeOptions
}

func NewClaudeAdapter(opts ClaudeOptions) *ClaudeAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultClaudeBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultClaudeModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &ClaudeAdapter{opts: opts}
}

type claudeRequest struct {
	Model      string            `json:"model"`
	MaxTokens  int               `json:"max_tokens"`
	System     string            `json:"system"`
	Messages   []chatMessage     `json:"messages"`
	Tools      []claudeTool      `json:"tools"`
	ToolChoice map[string]string `json:"tool_choice"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type claudeResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
}

func (a *ClaudeAdapter) Parse(ctx context.Context, apiKey, systemPrompt, input string) (macrolog.ParseResult, error) {
	schema, err := schemaMap()
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	payload, err := json.Marshal(claudeRequest{
		Model:      a.opts.Model,
		MaxTokens:  a.opts.MaxTokens,
		System:     systemPrompt,
		Messages:   []chatMessage{{Role: "user", Content: input}},
		Tools:      []claudeTool{{Name: ToolName, Description: ToolDescription, InputSchema: schema}},
		ToolChoice: map[string]string{"type": "tool", "name": ToolName},
	})
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return macrolog.ParseResult{}, err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	body, err := send(ctx, a.opts.HTTPClient, Claude, req)
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	var resp claudeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return macrolog.ParseResult{}, fmt.Errorf("failed to parse claude response: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			return decodeToolInput(Claude, block.Input)
		}
	}
	return macrolog.ParseResult{}, fmt.Errorf("unexpected claude response structure: no tool_use block")
}
