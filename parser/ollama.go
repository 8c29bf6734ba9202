package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"macrolog"
)

type ollamaOptions struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

type OllamaOptions struct {
	BaseEndpoint string
	Model        string
	HTTPClient   macrolog.HTTPClient
}

// OllamaAdapter talks to a local Ollama server. It needs no API key.
type OllamaAdapter struct {
	endpoint   string
	model      string
	httpClient macrolog.HTTPClient
	options    ollamaOptions
}

func NewOllamaAdapter(opts OllamaOptions) *OllamaAdapter {
	if opts.BaseEndpoint == "" {
		opts.BaseEndpoint = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "llama3.2"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &OllamaAdapter{
		endpoint:   strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		model:      opts.Model,
		httpClient: opts.HTTPClient,
		options: ollamaOptions{
			Temperature:   0.2,
			TopP:          0.9,
			RepeatPenalty: 1.05,
			NumCtx:        8192,
		},
	}
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []ollamaTool  `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Message struct {
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
}

func (a *OllamaAdapter) Parse(ctx context.Context, _ string, systemPrompt, input string) (macrolog.ParseResult, error) {
	schema, err := schemaMap()
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	payload, err := json.Marshal(ollamaRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt + "\nAlways answer by calling the " + ToolName + " tool."},
			{Role: "user", Content: input},
		},
		Tools: []ollamaTool{{
			Type:     "function",
			Function: openAIFunction{Name: ToolName, Description: ToolDescription, Parameters: schema},
		}},
		Stream:  false,
		Options: a.options,
	})
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return macrolog.ParseResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := send(ctx, a.httpClient, Ollama, req)
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return macrolog.ParseResult{}, fmt.Errorf("failed to parse ollama response: %w", err)
	}

	for _, call := range resp.Message.ToolCalls {
		if call.Function.Name == ToolName {
			return decodeToolInput(Ollama, call.Function.Arguments)
		}
	}

	// Smaller local models sometimes answer with the arguments as plain JSON content.
	content := strings.TrimSpace(resp.Message.Content)
	if strings.HasPrefix(content, "{") {
		slog.Warn("PARSER: ollama answered without a tool call, decoding content", "model", a.model)
		return decodeToolInput(Ollama, []byte(content))
	}
	return macrolog.ParseResult{}, fmt.Errorf("unexpected ollama response structure: no tool call")
}
