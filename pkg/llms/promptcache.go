package llms

// PromptCacheRetention controls how long a provider keeps cached prompt prefixes.
type PromptCacheRetention string

const (
	// PromptCacheRetentionInMemory keeps the cached prefix in provider memory only.
	PromptCacheRetentionInMemory PromptCacheRetention = "in-memory"
	// PromptCacheRetention24h keeps the cached prefix for 24 hours.
	PromptCacheRetention24h PromptCacheRetention = "24h"
)

// PromptCacheTTL is the time-to-live for a single cache breakpoint.
type PromptCacheTTL string

const (
	// PromptCacheTTL5m caches the block for five minutes.
	PromptCacheTTL5m PromptCacheTTL = "5m"
	// PromptCacheTTL1h caches the block for one hour.
	PromptCacheTTL1h PromptCacheTTL = "1h"
)

// PromptCacheTargetKind selects what a cache breakpoint points at.
type PromptCacheTargetKind string

const (
	// PromptCacheTargetMessagePart targets a part of a message by indexes.
	PromptCacheTargetMessagePart PromptCacheTargetKind = "message_part"
	// PromptCacheTargetTool targets a tool definition by index.
	PromptCacheTargetTool PromptCacheTargetKind = "tool"
)

// PromptCacheTarget selects a block in the provider-neutral message space.
// MessageIndex and PartIndex index into the caller-provided []Message and
// Message.Parts; ToolIndex indexes into CallOptions.Tools.
type PromptCacheTarget struct {
	Kind         PromptCacheTargetKind `json:"kind"`
	MessageIndex int                   `json:"message_index,omitempty"`
	PartIndex    int                   `json:"part_index,omitempty"`
	ToolIndex    int                   `json:"tool_index,omitempty"`
}

// PromptCacheBreakpoint marks a single cacheable block with an optional TTL.
type PromptCacheBreakpoint struct {
	Target PromptCacheTarget `json:"target"`
	TTL    PromptCacheTTL    `json:"ttl,omitempty"`
}

// PromptCacheRequestPolicy carries request-scoped cache hints for providers
// that key caches by an opaque routing value rather than explicit breakpoints.
type PromptCacheRequestPolicy struct {
	Key       string               `json:"key,omitempty"`
	Retention PromptCacheRetention `json:"retention,omitempty"`
}

// PromptCachePolicy describes how a request's prompt prefix should be cached.
// Providers apply the subset they support and ignore the rest.
type PromptCachePolicy struct {
	Request     *PromptCacheRequestPolicy `json:"request,omitempty"`
	Breakpoints []PromptCacheBreakpoint   `json:"breakpoints,omitempty"`
}
