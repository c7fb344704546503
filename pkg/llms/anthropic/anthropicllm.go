package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/invopop/jsonschema"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
)

var (
	ErrEmptyResponse          = errors.New("anthropic: no response")
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

const DefaultMaxTokens = 4096

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic chat client using the official Anthropic SDK.
//
// If no token is provided via options, the API key is read from the
// ANTHROPIC_API_KEY environment variable. A model name is required.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:      os.Getenv(TokenEnvVarName),
		BaseURL:    "https://api.anthropic.com",
		HTTPClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, ErrMissingToken
	}
	if options.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	c := newClient(options)
	return &LLM{
		Client:  c,
		Options: options,
	}, nil
}

func newClient(options *Options) *anthropic.Client {
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(5 * time.Minute),
	}

	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}

	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	if options.AnthropicBetaHeader != "" {
		sdkOpts = append(sdkOpts, option.WithHeader("anthropic-beta", options.AnthropicBetaHeader))
	}

	client := anthropic.NewClient(sdkOpts...)

	return &client
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.Options.Model,
	}
	for _, opt := range options {
		opt(&opts)
	}
	return GenerateMessagesContent(ctx, o, messages, &opts)
}

// GenerateMessagesContent generates content using the Anthropic Messages API.
func GenerateMessagesContent(ctx context.Context, o *LLM, messages []llms.Message, opts *llms.CallOptions) (*llms.ContentResponse, error) {
	params, reqOpts, err := buildRequest(o, messages, opts)
	if err != nil {
		return nil, err
	}

	result, err := o.Client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}

	return convertResponse(result)
}

// buildRequest assembles the Messages API params. System messages become
// top-level system blocks, and a prompt cache policy from the call options
// is resolved into cache_control markers plus any request-scoped options
// the selected TTL requires.
func buildRequest(o *LLM, messages []llms.Message, opts *llms.CallOptions) (anthropic.MessageNewParams, []option.RequestOption, error) {
	chat, system, refs, err := convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, nil, errors.Wrap(err, "anthropic: failed to process messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  chat,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
	}

	if len(system) > 0 {
		params.System = system
	}

	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}

	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}

	if len(opts.Tools) > 0 {
		tools, err := ToTools(opts.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, nil, err
		}
		params.Tools = tools
	}

	reqOpts, err := applyCachePolicy(o, &params, opts, refs)
	if err != nil {
		return anthropic.MessageNewParams{}, nil, err
	}

	return params, reqOpts, nil
}

// convertResponse maps the API result onto generic content choices, one
// choice per content block.
func convertResponse(result *anthropic.Message) (*llms.ContentResponse, error) {
	if len(result.Content) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}

	choices := make([]*llms.ContentChoice, len(result.Content))
	for i, block := range result.Content {
		choice := &llms.ContentChoice{
			StopReason:     string(result.StopReason),
			GenerationInfo: generationInfo(result, i),
		}

		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			choice.Content = content.Text
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(content.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			choice.ToolCalls = []llms.ToolCall{
				{
					ID: content.ID,
					FunctionCall: &llms.FunctionCall{
						Name:      content.Name,
						Arguments: string(args),
					},
				},
			}
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "anthropic: %T", content)
		}

		choices[i] = choice
	}

	return &llms.ContentResponse{Choices: choices}, nil
}

func generationInfo(result *anthropic.Message, index int) map[string]any {
	return map[string]any{
		"InputTokens":  result.Usage.InputTokens,
		"OutputTokens": result.Usage.OutputTokens,
		"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
		"ID":           result.ID,
		"Index":        index,
	}
}

// ToTools converts generic tool definitions to Anthropic SDK tool parameters.
//
// Properties are copied from the schema ordered map into a plain map for the
// SDK. Returns nil if no tools are provided.
func ToTools(tools []llms.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			return nil, errors.Errorf("anthropic: missing function definition for tool type %q", tool.Type)
		}

		sdkTools = append(sdkTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: toToolInput(tool.Function.Parameters),
			},
		})
	}
	return sdkTools, nil
}

func toToolInput(in *jsonschema.Schema) anthropic.ToolInputSchemaParam {
	out := anthropic.ToolInputSchemaParam{Type: "object"}
	if in == nil {
		return out
	}
	if in.Properties != nil {
		properties := make(map[string]any, in.Properties.Len())
		for pair := in.Properties.Oldest(); pair != nil; pair = pair.Next() {
			properties[pair.Key] = pair.Value
		}
		out.Properties = properties
	}
	if len(in.Required) > 0 {
		out.Required = in.Required
	}
	return out
}

// systemText extracts the text of a single system message part. Anthropic
// takes system prompts outside the conversation, so only text is accepted.
func systemText(part llms.ContentPart) (string, error) {
	text, ok := part.(llms.TextContent)
	if !ok {
		return "", errors.WithMessagef(ErrInvalidContentType, "anthropic: %T in system message", part)
	}
	return text.Text, nil
}

// messageBlocks converts the parts of a conversation message into SDK
// content blocks. Every part maps to exactly one block, keeping part
// indexes aligned with block indexes for cache breakpoint resolution.
func messageBlocks(msg llms.Message) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		block, err := partBlock(msg.Role, part)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return nil, errors.Errorf("anthropic: no valid content in %s message", msg.Role)
	}
	return blocks, nil
}

func partBlock(role llms.Role, part llms.ContentPart) (anthropic.ContentBlockParamUnion, error) {
	switch p := part.(type) {
	case llms.TextContent:
		if role == llms.RoleTool {
			return anthropic.ContentBlockParamUnion{}, errors.WithMessagef(ErrInvalidContentType, "anthropic: text part in %s message", role)
		}
		return anthropic.NewTextBlock(p.Text), nil

	case llms.ToolCall:
		if role != llms.RoleAI && role != llms.RoleGeneric {
			return anthropic.ContentBlockParamUnion{}, errors.WithMessagef(ErrInvalidContentType, "anthropic: tool call in %s message", role)
		}
		if p.FunctionCall == nil {
			return anthropic.ContentBlockParamUnion{}, errors.New("anthropic: tool call missing function")
		}
		var input json.RawMessage
		if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &input); err != nil {
			return anthropic.ContentBlockParamUnion{}, errors.Wrap(err, "anthropic: failed to unmarshal tool call arguments")
		}
		return anthropic.NewToolUseBlock(p.ID, input, p.FunctionCall.Name), nil

	case llms.ToolCallResponse:
		if role != llms.RoleTool {
			return anthropic.ContentBlockParamUnion{}, errors.WithMessagef(ErrInvalidContentType, "anthropic: tool response in %s message", role)
		}
		return anthropic.NewToolResultBlock(p.ToolCallID, p.Content, false), nil

	default:
		return anthropic.ContentBlockParamUnion{}, errors.WithMessagef(ErrInvalidContentType, "anthropic: %T in %s message", part, role)
	}
}
