package llms

import (
	"context"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the type of provider.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderOpenAI is the type of provider.
	ProviderOpenAI ProviderType = "OPENAI"
)

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the name of the configured model.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages. It's the most general interface for LLMs that support
	// chat-like interactions.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// PromptValue is the interface that all prompt values must implement.
type PromptValue interface {
	String() string
	Messages() []Message
}

// ContentResponse is the answer to a GenerateContent call. Providers may
// return several choices; callers normally use the first.
type ContentResponse struct {
	Choices []*ContentChoice
}

// ContentChoice is a single completion within a ContentResponse.
type ContentChoice struct {
	// Content is the textual content of the completion.
	Content string `json:"content"`

	// StopReason is the provider's reason for ending generation, normalized
	// to values like "stop", "tool_calls" or "max_tokens".
	StopReason string `json:"stop_reason"`

	// GenerationInfo carries provider-specific extras such as token counts.
	GenerationInfo map[string]any `json:"generation_info"`

	// FuncCall mirrors the first entry of ToolCalls for callers that only
	// handle a single call.
	FuncCall *FunctionCall `json:"func_call"`

	// ToolCalls lists every tool invocation the model requested.
	ToolCalls []ToolCall `json:"tool_calls"`
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// Basic text or chat generation
	CapabilityText Capability = 1 << iota

	// Structured response formats
	CapabilityJSONResponse
	CapabilityJSONSchema
	CapabilityJSONSchemaStrict

	// Function/tool calling
	CapabilityFunctionCalling
	CapabilityMultiToolCalling

	// System prompt support
	CapabilitySystemPrompt
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI: CapabilityText |
		CapabilityJSONResponse |
		CapabilityJSONSchema |
		CapabilityJSONSchemaStrict |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderAnthropic: CapabilityText |
		CapabilityJSONResponse |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,
}

func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
