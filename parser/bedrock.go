package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"macrolog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	defaultMaxTokens = 1024

	// Low temperature and top_p keep tool arguments deterministic.
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type BedrockOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// BedrockAdapter parses through the Bedrock Converse API. Credentials come from the AWS
// chain, so the per-request API key is ignored.
type BedrockAdapter struct {
	brc  bedrockRuntimeClient
	opts BedrockOptions
}

func NewBedrockAdapter(brc bedrockRuntimeClient, opts BedrockOptions) *BedrockAdapter {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &BedrockAdapter{brc: brc, opts: opts}
}

func (a *BedrockAdapter) Parse(ctx context.Context, _ string, systemPrompt, input string) (macrolog.ParseResult, error) {
	spec, err := buildToolSpec()
	if err != nil {
		return macrolog.ParseResult{}, err
	}

	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(a.opts.ModelID),
		System:  []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: input}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(a.opts.MaxTokens),
			Temperature: aws.Float32(a.opts.Temperature),
			TopP:        aws.Float32(a.opts.TopP),
		},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{
				Value: types.SpecificToolChoice{Name: aws.String(ToolName)},
			},
		},
	}

	out, err := a.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("PARSER: bedrock converse failed", "model", a.opts.ModelID, "error", err)
		return macrolog.ParseResult{}, classifyBedrock(err)
	}

	if out.Usage != nil {
		slog.Info("PARSER: bedrock converse succeeded",
			"stop_reason", out.StopReason,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		return macrolog.ParseResult{}, fmt.Errorf("model hit MaxTokens limit; consider increasing MAX_TOKENS")
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return macrolog.ParseResult{}, fmt.Errorf("model response blocked by Bedrock safety filters")
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return macrolog.ParseResult{}, fmt.Errorf("unexpected bedrock response structure: no message")
	}
	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || aws.ToString(tu.Value.Name) != ToolName || tu.Value.Input == nil {
			continue
		}
		raw, err := tu.Value.Input.MarshalSmithyDocument()
		if err != nil {
			return macrolog.ParseResult{}, fmt.Errorf("failed to read bedrock tool input: %w", err)
		}
		return decodeToolInput(Bedrock, raw)
	}
	return macrolog.ParseResult{}, fmt.Errorf("unexpected bedrock response structure: no tool_use block")
}

func buildToolSpec() (types.ToolSpecification, error) {
	schema, err := schemaMap()
	if err != nil {
		return types.ToolSpecification{}, err
	}
	return types.ToolSpecification{
		Name:        aws.String(ToolName),
		Description: aws.String(ToolDescription),
		InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
	}, nil
}

func classifyBedrock(err error) error {
	var (
		throttled *types.ThrottlingException
		denied    *types.AccessDeniedException
	)
	switch {
	case errors.As(err, &throttled):
		return &macrolog.RateLimitError{Message: aws.ToString(throttled.Message)}
	case errors.As(err, &denied):
		return &macrolog.AuthError{Status: http.StatusForbidden, Message: aws.ToString(denied.Message)}
	}
	return fmt.Errorf("bedrock converse failed: %w", err)
}
