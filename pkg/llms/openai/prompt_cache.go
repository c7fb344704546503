package openai

import (
	"github.com/openai/openai-go/v3"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
)

// applyPromptCacheToRequest copies request-level prompt cache hints onto the
// Chat Completions request. Breakpoint targets in the policy are ignored here;
// OpenAI keys its cache by prompt_cache_key rather than explicit block markers.
func applyPromptCacheToRequest(params *openai.ChatCompletionNewParams, opts *llms.CallOptions) {
	if params == nil || opts == nil || opts.PromptCachePolicy == nil {
		return
	}
	req := opts.PromptCachePolicy.Request
	if req == nil {
		return
	}

	if req.Key != "" {
		params.PromptCacheKey = openai.String(req.Key)
	}
	if req.Retention != "" {
		params.PromptCacheRetention = chatRetention(req.Retention)
	}
}

// chatRetention maps the policy retention constant onto the wire value the
// Chat Completions API expects: the API takes "in_memory" (underscore) while
// the policy constant uses "in-memory" (hyphen). Other values, such as "24h",
// pass through unchanged.
func chatRetention(retention llms.PromptCacheRetention) openai.ChatCompletionNewParamsPromptCacheRetention {
	switch retention {
	case llms.PromptCacheRetentionInMemory:
		return "in_memory"
	default:
		return openai.ChatCompletionNewParamsPromptCacheRetention(retention)
	}
}
