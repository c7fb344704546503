package llms

import (
	"github.com/orderpilot-ai/orderpilot/pkg/schema"
)

// CallOption configures a single GenerateContent call.
type CallOption func(*CallOptions)

// CallOptions collects per-call settings. Providers ignore settings their API
// has no equivalent for.
type CallOptions struct {
	// Model overrides the model the client was built with.
	Model string
	// MaxTokens caps the number of generated tokens.
	MaxTokens int
	// Temperature regulates sampling randomness, between 0 and 1.
	Temperature float64
	// StopWords end generation when emitted.
	StopWords []string
	// TopP is the cumulative probability cutoff for nucleus sampling.
	TopP float64
	// Seed requests deterministic sampling where supported.
	Seed int
	// N asks for this many completion choices per call.
	N int
	// FrequencyPenalty discourages repeated tokens.
	FrequencyPenalty float64
	// PresencePenalty discourages tokens already present in the transcript.
	PresencePenalty float64

	// Tools the model may call during this turn.
	Tools []Tool
	// ToolChoice is "none", "auto" (default) or a ToolChoice naming one tool.
	ToolChoice any

	// ResponseFormat constrains output to a JSON schema. Unset means plain
	// text.
	ResponseFormat *schema.ResponseFormat

	// PromptCachePolicy controls provider prompt caching for this call.
	PromptCachePolicy *PromptCachePolicy
}

// WithOptions replaces the whole option set at once.
func WithOptions(options CallOptions) CallOption {
	return func(o *CallOptions) {
		(*o) = options
	}
}

// WithModel overrides the model name for this call.
func WithModel(model string) CallOption {
	return func(o *CallOptions) {
		o.Model = model
	}
}

// WithMaxTokens caps the number of generated tokens.
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = temperature
	}
}

// WithStopWords sets the words that end generation.
func WithStopWords(stopWords []string) CallOption {
	return func(o *CallOptions) {
		o.StopWords = stopWords
	}
}

// WithTopP sets the nucleus sampling cutoff.
func WithTopP(topP float64) CallOption {
	return func(o *CallOptions) {
		o.TopP = topP
	}
}

// WithSeed requests deterministic sampling.
func WithSeed(seed int) CallOption {
	return func(o *CallOptions) {
		o.Seed = seed
	}
}

// WithN sets how many completion choices to generate.
func WithN(n int) CallOption {
	return func(o *CallOptions) {
		o.N = n
	}
}

// WithFrequencyPenalty sets the frequency penalty for sampling.
func WithFrequencyPenalty(frequencyPenalty float64) CallOption {
	return func(o *CallOptions) {
		o.FrequencyPenalty = frequencyPenalty
	}
}

// WithPresencePenalty sets the presence penalty for sampling.
func WithPresencePenalty(presencePenalty float64) CallOption {
	return func(o *CallOptions) {
		o.PresencePenalty = presencePenalty
	}
}

// WithTools sets the tools the model may call.
func WithTools(tools []Tool) CallOption {
	return func(o *CallOptions) {
		o.Tools = tools
	}
}

// WithToolChoice forces or forbids tool use: "none", "auto", or a ToolChoice
// naming a specific tool.
func WithToolChoice(choice any) CallOption {
	return func(o *CallOptions) {
		o.ToolChoice = choice
	}
}

// WithResponseFormat constrains the output to a JSON schema.
func WithResponseFormat(responseFormat *schema.ResponseFormat) CallOption {
	return func(o *CallOptions) {
		o.ResponseFormat = responseFormat
	}
}

// WithPromptCachePolicy sets the prompt cache policy for this call.
func WithPromptCachePolicy(policy *PromptCachePolicy) CallOption {
	return func(o *CallOptions) {
		o.PromptCachePolicy = policy
	}
}
