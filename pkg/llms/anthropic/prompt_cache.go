package anthropic

import (
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
)

// Anthropic caches prompt prefixes up to explicit cache_control markers.
// Callers select blocks in the provider-neutral message space, but the SDK
// request splits content between MessageNewParams.System and per-message
// Content blocks, so message conversion also records where every original
// part landed. Anthropic allows at most four markers per request.
const maxCacheBreakpoints = 4

// partRef identifies an original message part by its position in the
// caller-provided messages.
type partRef struct {
	message int
	part    int
}

// blockRef locates the converted block in the SDK request. For system
// parts, block indexes into params.System; otherwise message/block index
// into params.Messages and their Content.
type blockRef struct {
	system  bool
	message int
	block   int
}

// convertMessages builds the chat and system params for a request and the
// partRef to blockRef map used to resolve cache breakpoints.
func convertMessages(messages []llms.Message) ([]sdkanthropic.MessageParam, []sdkanthropic.TextBlockParam, map[partRef]blockRef, error) {
	var (
		chat   []sdkanthropic.MessageParam
		system []sdkanthropic.TextBlockParam
	)
	refs := make(map[partRef]blockRef)

	for i, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}

		if msg.Role == llms.RoleSystem {
			// Each system part becomes its own top-level block so that
			// every one of them remains a valid breakpoint target.
			for j, part := range msg.Parts {
				text, err := systemText(part)
				if err != nil {
					return nil, nil, nil, errors.Wrap(err, "anthropic: failed to handle system message")
				}
				system = append(system, sdkanthropic.TextBlockParam{Type: "text", Text: text})
				refs[partRef{message: i, part: j}] = blockRef{system: true, block: len(system) - 1}
			}
			continue
		}

		var wrap func(...sdkanthropic.ContentBlockParamUnion) sdkanthropic.MessageParam
		switch msg.Role {
		case llms.RoleHuman, llms.RoleTool:
			wrap = sdkanthropic.NewUserMessage
		case llms.RoleAI, llms.RoleGeneric:
			wrap = sdkanthropic.NewAssistantMessage
		default:
			return nil, nil, nil, errors.WithMessagef(ErrUnsupportedMessageType, "anthropic: %v", msg.Role)
		}

		// messageBlocks maps parts to blocks one to one, so block indexes
		// inside the converted message equal part indexes.
		blocks, err := messageBlocks(msg)
		if err != nil {
			return nil, nil, nil, errors.WithMessagef(err, "anthropic: failed to handle %s message", msg.Role)
		}

		chat = append(chat, wrap(blocks...))
		for j := range msg.Parts {
			refs[partRef{message: i, part: j}] = blockRef{message: len(chat) - 1, block: j}
		}
	}

	return chat, system, refs, nil
}

// applyCachePolicy resolves the policy's breakpoint targets against the
// converted request and sets cache_control markers in place. It returns
// request options when a selected TTL needs a beta header.
func applyCachePolicy(o *LLM, params *sdkanthropic.MessageNewParams, opts *llms.CallOptions, refs map[partRef]blockRef) ([]option.RequestOption, error) {
	if opts == nil || opts.PromptCachePolicy == nil || len(opts.PromptCachePolicy.Breakpoints) == 0 {
		return nil, nil
	}

	breakpoints := opts.PromptCachePolicy.Breakpoints
	if len(breakpoints) > maxCacheBreakpoints {
		return nil, errors.Errorf("anthropic: too many prompt cache breakpoints: %d (max %d)",
			len(breakpoints), maxCacheBreakpoints)
	}

	seen := make(map[llms.PromptCacheTarget]struct{}, len(breakpoints))
	extendedTTL := false

	for _, bp := range breakpoints {
		if _, dup := seen[bp.Target]; dup {
			return nil, errors.Errorf("anthropic: duplicate prompt cache breakpoint: %+v", bp.Target)
		}
		seen[bp.Target] = struct{}{}

		control, err := cacheControlFor(bp.TTL)
		if err != nil {
			return nil, err
		}
		if bp.TTL == llms.PromptCacheTTL1h {
			extendedTTL = true
		}

		switch bp.Target.Kind {
		case llms.PromptCacheTargetMessagePart:
			if bp.Target.MessageIndex < 0 || bp.Target.PartIndex < 0 {
				return nil, errors.Errorf("anthropic: invalid prompt cache message_part target: message=%d part=%d",
					bp.Target.MessageIndex, bp.Target.PartIndex)
			}
			ref, ok := refs[partRef{message: bp.Target.MessageIndex, part: bp.Target.PartIndex}]
			if !ok {
				return nil, errors.Errorf("anthropic: prompt cache target not found for message[%d].part[%d]",
					bp.Target.MessageIndex, bp.Target.PartIndex)
			}
			if ref.system {
				if ref.block >= len(params.System) {
					return nil, errors.Errorf("anthropic: invalid system prompt cache target index: %d", ref.block)
				}
				params.System[ref.block].CacheControl = control
				continue
			}
			if ref.message >= len(params.Messages) || ref.block >= len(params.Messages[ref.message].Content) {
				return nil, errors.Errorf("anthropic: invalid message prompt cache target: message=%d block=%d",
					ref.message, ref.block)
			}
			marker := params.Messages[ref.message].Content[ref.block].GetCacheControl()
			if marker == nil {
				return nil, errors.Errorf("anthropic: prompt cache unsupported for message[%d].part[%d]",
					bp.Target.MessageIndex, bp.Target.PartIndex)
			}
			*marker = control

		case llms.PromptCacheTargetTool:
			if bp.Target.ToolIndex < 0 || bp.Target.ToolIndex >= len(params.Tools) {
				return nil, errors.Errorf("anthropic: prompt cache tool target out of range: tool[%d]", bp.Target.ToolIndex)
			}
			marker := params.Tools[bp.Target.ToolIndex].GetCacheControl()
			if marker == nil {
				return nil, errors.Errorf("anthropic: prompt cache unsupported for tool[%d]", bp.Target.ToolIndex)
			}
			*marker = control

		default:
			return nil, errors.Errorf("anthropic: unsupported prompt cache target kind: %q", bp.Target.Kind)
		}
	}

	if !extendedTTL {
		return nil, nil
	}
	return extendedTTLRequestOptions(o), nil
}

// cacheControlFor maps a policy TTL onto the SDK cache_control param. An
// empty TTL keeps the provider default (five minutes).
func cacheControlFor(ttl llms.PromptCacheTTL) (sdkanthropic.CacheControlEphemeralParam, error) {
	control := sdkanthropic.NewCacheControlEphemeralParam()
	switch ttl {
	case "":
	case llms.PromptCacheTTL5m:
		control.TTL = sdkanthropic.CacheControlEphemeralTTLTTL5m
	case llms.PromptCacheTTL1h:
		control.TTL = sdkanthropic.CacheControlEphemeralTTLTTL1h
	default:
		return sdkanthropic.CacheControlEphemeralParam{}, errors.Errorf("anthropic: unsupported prompt cache TTL: %q", ttl)
	}
	return control, nil
}

// extendedTTLRequestOptions returns a request-scoped anthropic-beta header
// for the 1h TTL, merged with client-level beta tokens without mutating
// the client configuration.
func extendedTTLRequestOptions(o *LLM) []option.RequestOption {
	if o == nil || o.Options == nil {
		return nil
	}

	betaToken := string(sdkanthropic.AnthropicBetaExtendedCacheTTL2025_04_11)
	existing := strings.TrimSpace(o.Options.AnthropicBetaHeader)
	for _, tok := range strings.Split(existing, ",") {
		if strings.TrimSpace(tok) == betaToken {
			return nil
		}
	}

	header := betaToken
	if existing != "" {
		header = existing + "," + betaToken
	}
	return []option.RequestOption{option.WithHeader("anthropic-beta", header)}
}
