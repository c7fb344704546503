package anthropic

import (
	"testing"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
)

func TestConvertMessages(t *testing.T) {
	t.Parallel()

	messages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are an ordering assistant."),
		llms.MessageFromTextParts(llms.RoleSystem, "Confirm the full order before checkout."),
		{Role: llms.RoleHuman, Parts: nil},
		llms.MessageFromTextParts(llms.RoleHuman, "find me a pizza place"),
	}

	chat, system, refs, err := convertMessages(messages)
	require.NoError(t, err)

	require.Len(t, system, 2)
	assert.Equal(t, "You are an ordering assistant.", system[0].Text)
	assert.Equal(t, "Confirm the full order before checkout.", system[1].Text)
	require.Len(t, chat, 1)

	assert.Equal(t, blockRef{system: true, block: 0}, refs[partRef{message: 0, part: 0}])
	assert.Equal(t, blockRef{system: true, block: 1}, refs[partRef{message: 1, part: 0}])

	// The empty message produces no block, so the human turn keeps its
	// original index 3 but lands at chat position 0.
	_, ok := refs[partRef{message: 2, part: 0}]
	assert.False(t, ok)
	assert.Equal(t, blockRef{message: 0, block: 0}, refs[partRef{message: 3, part: 0}])
}

func TestConvertMessagesUnsupportedRole(t *testing.T) {
	t.Parallel()

	_, _, _, err := convertMessages([]llms.Message{
		llms.MessageFromTextParts(llms.Role("moderator"), "nope"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)
}

func TestApplyCachePolicy(t *testing.T) {
	t.Parallel()

	params, refs := cacheFixture(t)
	opts := &llms.CallOptions{
		PromptCachePolicy: &llms.PromptCachePolicy{
			Breakpoints: []llms.PromptCacheBreakpoint{
				{
					Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetMessagePart, MessageIndex: 0, PartIndex: 0},
					TTL:    llms.PromptCacheTTL1h,
				},
				{
					Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetMessagePart, MessageIndex: 1, PartIndex: 0},
					TTL:    llms.PromptCacheTTL5m,
				},
				{
					Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetTool, ToolIndex: 0},
				},
			},
		},
	}

	reqOpts, err := applyCachePolicy(&LLM{Options: &Options{}}, &params, opts, refs)
	require.NoError(t, err)

	assert.Equal(t, sdkanthropic.CacheControlEphemeralTTLTTL1h, params.System[0].CacheControl.TTL)
	require.NotNil(t, params.Messages[0].Content[0].GetCacheControl())
	assert.Equal(t, sdkanthropic.CacheControlEphemeralTTLTTL5m, params.Messages[0].Content[0].GetCacheControl().TTL)
	require.NotNil(t, params.Tools[0].GetCacheControl())
	assert.Equal(t, "ephemeral", string(params.Tools[0].GetCacheControl().Type))

	// Only the 1h TTL needs the beta header.
	assert.Len(t, reqOpts, 1)
}

func TestApplyCachePolicyNoPolicy(t *testing.T) {
	t.Parallel()

	params, refs := cacheFixture(t)
	reqOpts, err := applyCachePolicy(&LLM{Options: &Options{}}, &params, &llms.CallOptions{}, refs)
	require.NoError(t, err)
	assert.Nil(t, reqOpts)
	assert.Empty(t, params.System[0].CacheControl.TTL)
}

func TestApplyCachePolicyRejects(t *testing.T) {
	t.Parallel()

	msgTarget := func(msg, part int) llms.PromptCacheTarget {
		return llms.PromptCacheTarget{Kind: llms.PromptCacheTargetMessagePart, MessageIndex: msg, PartIndex: part}
	}

	tests := []struct {
		name        string
		breakpoints []llms.PromptCacheBreakpoint
		errContains string
	}{
		{
			name: "duplicate_target",
			breakpoints: []llms.PromptCacheBreakpoint{
				{Target: msgTarget(1, 0)},
				{Target: msgTarget(1, 0)},
			},
			errContains: "duplicate prompt cache breakpoint",
		},
		{
			name: "too_many_breakpoints",
			breakpoints: []llms.PromptCacheBreakpoint{
				{Target: msgTarget(0, 0)},
				{Target: msgTarget(1, 0)},
				{Target: msgTarget(1, 1)},
				{Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetTool, ToolIndex: 0}},
				{Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetTool, ToolIndex: 1}},
			},
			errContains: "too many prompt cache breakpoints",
		},
		{
			name:        "unknown_message_part",
			breakpoints: []llms.PromptCacheBreakpoint{{Target: msgTarget(9, 0)}},
			errContains: "prompt cache target not found",
		},
		{
			name: "tool_out_of_range",
			breakpoints: []llms.PromptCacheBreakpoint{
				{Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetTool, ToolIndex: 7}},
			},
			errContains: "tool target out of range",
		},
		{
			name: "unsupported_ttl",
			breakpoints: []llms.PromptCacheBreakpoint{
				{Target: msgTarget(0, 0), TTL: llms.PromptCacheTTL("2h")},
			},
			errContains: "unsupported prompt cache TTL",
		},
		{
			name: "unsupported_kind",
			breakpoints: []llms.PromptCacheBreakpoint{
				{Target: llms.PromptCacheTarget{Kind: llms.PromptCacheTargetKind("header")}},
			},
			errContains: "unsupported prompt cache target kind",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			params, refs := cacheFixture(t)
			opts := &llms.CallOptions{
				PromptCachePolicy: &llms.PromptCachePolicy{Breakpoints: tc.breakpoints},
			}

			_, err := applyCachePolicy(&LLM{Options: &Options{}}, &params, opts, refs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errContains)
		})
	}
}

func TestExtendedTTLRequestOptions(t *testing.T) {
	t.Parallel()

	beta := string(sdkanthropic.AnthropicBetaExtendedCacheTTL2025_04_11)

	assert.Len(t, extendedTTLRequestOptions(&LLM{Options: &Options{}}), 1)
	assert.Empty(t, extendedTTLRequestOptions(&LLM{Options: &Options{AnthropicBetaHeader: beta}}))
	// Token detection is whitespace-insensitive.
	assert.Empty(t, extendedTTLRequestOptions(&LLM{Options: &Options{AnthropicBetaHeader: "foo, " + beta}}))
	assert.Len(t, extendedTTLRequestOptions(&LLM{Options: &Options{AnthropicBetaHeader: "foo"}}), 1)
	assert.Nil(t, extendedTTLRequestOptions(nil))
}

func cacheFixture(t *testing.T) (sdkanthropic.MessageNewParams, map[partRef]blockRef) {
	t.Helper()

	messages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are an ordering assistant."),
		{
			Role: llms.RoleHuman,
			Parts: []llms.ContentPart{
				llms.TextPart("Saved addresses: 1 Main St, 9 Oak Ave."),
				llms.TextPart("I want sushi for lunch"),
			},
		},
	}

	chat, system, refs, err := convertMessages(messages)
	require.NoError(t, err)

	tools, err := ToTools([]llms.Tool{
		{
			Function: &llms.FunctionDefinition{
				Name:        "search_restaurants",
				Description: "Search for restaurants",
				Parameters:  &jsonschema.Schema{Type: "object"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, tools, 1)

	return sdkanthropic.MessageNewParams{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 256,
		Messages:  chat,
		System:    system,
		Tools:     tools,
	}, refs
}
