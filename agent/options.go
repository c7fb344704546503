package agent

import (
	"path"
	"regexp"

	"github.com/orderpilot-ai/orderpilot/outcome"
	"github.com/orderpilot-ai/orderpilot/pkg/llms"
)

// Option is a function that can be used to modify the agent Config.
type Option func(*Config)

// Config carries the loop and LLM call settings.
type Config struct {
	// Model overrides the provider's default model.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate per model call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the sampling temperature, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// MaxRounds caps model/tool exchanges per user message.
	MaxRounds int

	// SideEffects matches tool names whose results must be verified
	// before the agent may claim they happened.
	SideEffects *regexp.Regexp

	// Callback observes loop progress.
	Callback Callback
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxRounds:   DefaultMaxRounds,
		SideEffects: outcome.SideEffectPattern,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithModel overrides the model name for LLM calls.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = true
	}
}

// WithMaxTokens sets the maximum number of tokens per model call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithMaxRounds overrides the round ceiling.
func WithMaxRounds(rounds int) Option {
	return func(o *Config) {
		if rounds > 0 {
			o.MaxRounds = rounds
		}
	}
}

// WithSideEffectPattern overrides the pattern that marks tool names as
// side-effecting.
func WithSideEffectPattern(pattern *regexp.Regexp) Option {
	return func(o *Config) {
		if pattern != nil {
			o.SideEffects = pattern
		}
	}
}

// WithCallback sets a progress observer.
func WithCallback(cb Callback) Option {
	return func(o *Config) {
		o.Callback = cb
	}
}

// callOptions converts the set knobs plus the tool catalog into LLM call
// options. Tool choice is always automatic: the model decides when to
// stop calling tools.
func (c *Config) callOptions(tools []llms.Tool) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTools(tools),
		llms.WithToolChoice("auto"),
	}
	if c.modelSet {
		opts = append(opts, llms.WithModel(c.Model))
	}
	if c.maxTokensSet {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		opts = append(opts, llms.WithTemperature(c.Temperature))
	}
	return opts
}

// cachePolicy marks the stable request prefix (the system prompt part and
// the last tool definition) as cache breakpoints, and routes request-keyed
// provider caches by conversation.
func cachePolicy(tenantID, chatID string, toolCount int) *llms.PromptCachePolicy {
	policy := &llms.PromptCachePolicy{
		Request: &llms.PromptCacheRequestPolicy{
			Key: path.Join("orderpilot", tenantID, chatID),
		},
		Breakpoints: []llms.PromptCacheBreakpoint{
			{Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetMessagePart, MessageIndex: 0, PartIndex: 0}},
		},
	}
	if toolCount > 0 {
		policy.Breakpoints = append(policy.Breakpoints, llms.PromptCacheBreakpoint{
			Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetTool, ToolIndex: toolCount - 1},
		})
	}
	return policy
}
