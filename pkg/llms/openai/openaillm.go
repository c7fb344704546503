package openai

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
	"github.com/orderpilot-ai/orderpilot/pkg/schema"
)

var (
	ErrEmptyResponse          = errors.New("openai: no response")
	ErrMissingToken           = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
	ErrInvalidContentType     = errors.New("openai: invalid content type")
	ErrUnsupportedMessageType = errors.New("openai: unsupported message type")
)

const DefaultMaxTokens = 2 * 16384

type LLM struct {
	Client  *openai.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new OpenAI chat client using the official OpenAI SDK.
//
// If no token is provided via options, the API key is read from the
// OPENAI_API_KEY environment variable. A model name is required, either via
// WithModel or the OPENAI_MODEL environment variable.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:        os.Getenv(tokenEnvVarName),
		Model:        os.Getenv(modelEnvVarName),
		BaseURL:      os.Getenv(baseURLEnvVarName),
		Organization: os.Getenv(organizationEnvVarName),
		HTTPClient:   http.DefaultClient,
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, ErrMissingToken
	}
	if options.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	c := newClient(options)
	return &LLM{
		Client:  c,
		Options: options,
	}, nil
}

func newClient(options *Options) *openai.Client {
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(5 * time.Minute),
	}

	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}

	if options.Organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(options.Organization))
	}

	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	client := openai.NewClient(sdkOpts...)

	return &client
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
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

// GenerateMessagesContent generates content using the Chat Completions API.
//
// Messages and tool definitions are converted to the SDK request format.
// Request-level prompt cache hints from the call options are applied to the
// request before it is sent; OpenAI keys its prompt cache by an opaque routing
// value instead of explicit breakpoints.
func GenerateMessagesContent(ctx context.Context, o *LLM, messages []llms.Message, opts *llms.CallOptions) (*llms.ContentResponse, error) {
	chatMessages, err := ProcessMessages(messages)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to process messages")
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(opts.Model),
		Messages:            chatMessages,
		MaxCompletionTokens: openai.Int(values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens)),
	}

	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}

	if opts.N > 0 {
		params.N = openai.Int(int64(opts.N))
	}

	if opts.Seed > 0 {
		params.Seed = openai.Int(int64(opts.Seed))
	}

	if opts.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(opts.FrequencyPenalty)
	}

	if opts.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(opts.PresencePenalty)
	}

	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: opts.StopWords,
		}
	}

	if len(opts.Tools) > 0 {
		tools, err := ToTools(opts.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	if opts.ToolChoice != nil {
		toolChoice, err := toToolChoice(opts.ToolChoice)
		if err != nil {
			return nil, err
		}
		params.ToolChoice = toolChoice
	}

	if opts.ResponseFormat != nil {
		responseFormat, err := toResponseFormat(opts.ResponseFormat)
		if err != nil {
			return nil, err
		}
		params.ResponseFormat = responseFormat
	}

	applyPromptCacheToRequest(&params, opts)

	result, err := o.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to create chat completion")
	}

	if len(result.Choices) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"PromptTokens":     result.Usage.PromptTokens,
				"CompletionTokens": result.Usage.CompletionTokens,
				"TotalTokens":      result.Usage.TotalTokens,
				"CachedTokens":     result.Usage.PromptTokensDetails.CachedTokens,
				"ID":               result.ID,
				"Index":            i,
			},
		}

		for _, tool := range c.Message.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
		// populate legacy single-function call field for backwards compatibility
		if len(choice.ToolCalls) > 0 {
			choice.FuncCall = choice.ToolCalls[0].FunctionCall
		}
		choices[i] = choice
	}

	response := &llms.ContentResponse{Choices: choices}
	return response, nil
}

// ProcessMessages converts generic messages to OpenAI chat message params.
//
// System and human messages must carry only text parts; consecutive text parts
// of one message are joined with newlines since the Chat Completions API takes
// a single content string per message. Tool responses become one tool message
// per part.
func ProcessMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	chatMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		switch msg.Role {
		case llms.RoleSystem:
			text, err := joinTextParts(msg)
			if err != nil {
				return nil, errors.WithMessage(err, "openai: failed to handle system message")
			}
			chatMessages = append(chatMessages, openai.SystemMessage(text))

		case llms.RoleHuman, llms.RoleGeneric:
			text, err := joinTextParts(msg)
			if err != nil {
				return nil, errors.WithMessage(err, "openai: failed to handle human message")
			}
			chatMessages = append(chatMessages, openai.UserMessage(text))

		case llms.RoleAI:
			chatMessage, err := HandleAIMessage(msg)
			if err != nil {
				return nil, errors.WithMessage(err, "openai: failed to handle AI message")
			}
			chatMessages = append(chatMessages, chatMessage)

		case llms.RoleTool:
			for _, part := range msg.Parts {
				toolCallResponse, ok := part.(llms.ToolCallResponse)
				if !ok {
					return nil, errors.WithMessagef(ErrInvalidContentType, "openai: for tool message part type: %T", part)
				}
				chatMessages = append(chatMessages, openai.ToolMessage(toolCallResponse.Content, toolCallResponse.ToolCallID))
			}

		default:
			return nil, errors.WithMessagef(ErrUnsupportedMessageType, "openai: %v", msg.Role)
		}
	}
	return chatMessages, nil
}

// HandleAIMessage converts assistant messages, including tool calls, to the
// OpenAI assistant message format.
func HandleAIMessage(msg llms.Message) (openai.ChatCompletionMessageParamUnion, error) {
	assistant := &openai.ChatCompletionAssistantMessageParam{}
	var texts []string

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			texts = append(texts, p.Text)
		case llms.ToolCall:
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: p.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					},
				},
			})
		default:
			return openai.ChatCompletionMessageParamUnion{}, errors.Errorf("openai: unsupported AI message part type: %T", part)
		}
	}

	if len(texts) == 0 && len(assistant.ToolCalls) == 0 {
		return openai.ChatCompletionMessageParamUnion{}, errors.New("openai: no valid content in AI message")
	}

	if len(texts) > 0 {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(strings.Join(texts, "\n")),
		}
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}, nil
}

func joinTextParts(msg llms.Message) (string, error) {
	texts := make([]string, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		p, ok := part.(llms.TextContent)
		if !ok {
			return "", errors.WithMessagef(ErrInvalidContentType, "openai: for message part type: %T", part)
		}
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n"), nil
}

// ToTools converts generic tool definitions to OpenAI SDK tool parameters.
//
// Properties are copied from the schema ordered map into a plain map for the
// SDK. Returns nil if no tools are provided.
func ToTools(tools []llms.Tool) ([]openai.ChatCompletionToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	sdkTools := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			return nil, errors.Errorf("openai: missing function definition for tool type %q", tool.Type)
		}

		fn := openai.FunctionDefinitionParam{
			Name:       tool.Function.Name,
			Parameters: toFunctionParameters(tool.Function.Parameters),
		}
		if tool.Function.Description != "" {
			fn.Description = openai.String(tool.Function.Description)
		}
		if tool.Function.Strict {
			fn.Strict = openai.Bool(true)
		}

		sdkTools = append(sdkTools, openai.ChatCompletionFunctionTool(fn))
	}
	return sdkTools, nil
}

func toFunctionParameters(in *jsonschema.Schema) openai.FunctionParameters {
	if in == nil {
		return openai.FunctionParameters{"type": "object"}
	}

	params := openai.FunctionParameters{"type": "object"}
	if in.Properties != nil {
		properties := make(map[string]any, in.Properties.Len())
		for pair := in.Properties.Oldest(); pair != nil; pair = pair.Next() {
			properties[pair.Key] = pair.Value
		}
		params["properties"] = properties
	}
	if len(in.Required) > 0 {
		params["required"] = in.Required
	}
	return params
}

func toToolChoice(choice any) (openai.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch tc := choice.(type) {
	case string:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(tc),
		}, nil
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{}, errors.Errorf("openai: unsupported tool choice type: %T", choice)
	}
}

func toResponseFormat(rf *schema.ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	switch rf.Type {
	case "json_schema":
		if rf.JSONSchema == nil {
			return openai.ChatCompletionNewParamsResponseFormatUnion{}, errors.New("openai: missing json_schema in response format")
		}
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   rf.JSONSchema.Name,
					Schema: rf.JSONSchema.Schema,
					Strict: openai.Bool(rf.JSONSchema.Strict),
				},
			},
		}, nil
	case "json_object":
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}, nil
	case "", "text":
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfText: &openai.ResponseFormatTextParam{},
		}, nil
	default:
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, errors.Errorf("openai: unsupported response format type: %q", rf.Type)
	}
}
