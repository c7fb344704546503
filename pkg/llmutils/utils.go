// Package llmutils holds small helpers for cleaning up model output and
// rendering transcripts: repairing JSON the model wrapped in prose or code
// fences, and counting the bytes and tokens that cross the wire.
package llmutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bububa/ljson"
	"github.com/effective-security/x/values"
	"gopkg.in/yaml.v3"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
)

// CleanJSON cuts the JSON document out of surrounding prose, handling
// replies like `Sure, here you go: {...}. Let me know!`.
func CleanJSON(bs []byte) []byte {
	return trimAfterJSON(trimBeforeJSON(bs))
}

func trimBeforeJSON(bs []byte) []byte {
	if start := bytes.IndexAny(bs, "{["); start >= 0 {
		return bs[start:]
	}
	return bs
}

func trimAfterJSON(bs []byte) []byte {
	if end := bytes.LastIndexAny(bs, "}]"); end >= 0 {
		return bs[:end+1]
	}
	return bs
}

var fence = []byte("```")

// TrimBackticks strips a Markdown code fence, with or without a language
// tag, from around the payload.
func TrimBackticks(text string) string {
	return string(BytesTrimBackticks([]byte(text)))
}

// BytesTrimBackticks is TrimBackticks for byte slices.
func BytesTrimBackticks(bs []byte) []byte {
	_, after, found := bytes.Cut(bs, fence)
	if !found {
		return bs
	}
	// Skip the language tag on the opening fence (```json), unless the
	// payload starts on the same line.
	if nl := bytes.IndexByte(after, '\n'); nl >= 0 {
		if open := bytes.IndexAny(after[:nl], "{["); open < 0 {
			after = after[nl+1:]
		}
	}
	if end := bytes.LastIndex(after, fence); end >= 0 {
		after = after[:end]
	}
	return bytes.TrimSpace(after)
}

// UnmarshalLenient decodes JSON produced by a model into ret, tolerating
// the usual model sloppiness: surrounding prose, code fences and trailing
// commas.
func UnmarshalLenient(bs []byte, ret any) error {
	return ljson.Unmarshal(CleanJSON(BytesTrimBackticks(bs)), ret)
}

// NormalizeArgs repairs a model-produced tool arguments string into canonical
// JSON. Empty input yields an empty object. If the input cannot be repaired,
// it is returned unchanged so the remote side can produce its own error.
func NormalizeArgs(args string) string {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		return "{}"
	}
	var decoded map[string]any
	if err := UnmarshalLenient([]byte(trimmed), &decoded); err != nil {
		return trimmed
	}
	js, err := json.Marshal(decoded)
	if err != nil {
		return trimmed
	}
	return string(js)
}

// ToJSON renders val as compact JSON, ignoring errors. For logs and tests.
func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

// ToJSONIndent renders val as tab-indented JSON, ignoring errors.
func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

// ToYAML renders val as YAML, ignoring errors.
func ToYAML(val any) string {
	ys, _ := yaml.Marshal(val)
	return string(ys)
}

func roleLabel(r llms.Role) string {
	switch r {
	case llms.RoleAI:
		return "AI"
	case llms.RoleHuman:
		return "Human"
	case llms.RoleSystem:
		return "System"
	case llms.RoleGeneric:
		return "Generic"
	case llms.RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// PrintMessages writes a transcript in a readable form, one line per part.
func PrintMessages(w io.Writer, msgs []llms.Message) {
	for _, mc := range msgs {
		fmt.Fprintf(w, "%s: ", roleLabel(mc.Role))
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				fmt.Fprintln(w, pp.Text)
			case llms.ToolCall:
				js, _ := json.Marshal(pp)
				fmt.Fprintf(w, "Tool Call: %s\n", js)
			case llms.ToolCallResponse:
				js, _ := json.Marshal(pp)
				fmt.Fprintf(w, "%s: Response: %s\n", pp.Name, js)
			}
		}
	}
}

func partSize(p llms.ContentPart) uint64 {
	switch pp := p.(type) {
	case llms.TextContent:
		return uint64(len(pp.Text))
	case llms.ToolCall:
		size := uint64(len(pp.ID) + len(pp.Type))
		if pp.FunctionCall != nil {
			size += uint64(len(pp.FunctionCall.Name) + len(pp.FunctionCall.Arguments))
		}
		return size
	case llms.ToolCallResponse:
		return uint64(len(pp.ToolCallID) + len(pp.Name) + len(pp.Content))
	}
	return 0
}

// CountMessagesContentSize sums the content bytes of a transcript.
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var size uint64
	for _, mc := range msgs {
		size += uint64(len(mc.Role))
		for _, p := range mc.Parts {
			size += partSize(p)
		}
	}
	return size
}

// CountResponseContentSize sums the content bytes of a model response.
func CountResponseContentSize(resp *llms.ContentResponse) uint64 {
	var size uint64
	for _, choice := range resp.Choices {
		size += uint64(len(choice.Content))
		if choice.FuncCall != nil {
			size += uint64(len(choice.FuncCall.Name) + len(choice.FuncCall.Arguments))
		}
		for _, tc := range choice.ToolCalls {
			size += partSize(tc)
		}
	}
	return size
}

// CountTokens sums the token counts providers report in GenerationInfo.
func CountTokens(resp *llms.ContentResponse) (in, out, total int64) {
	for _, choice := range resp.Choices {
		ma := values.MapAny(choice.GenerationInfo)
		in += ma.Int64("InputTokens")
		out += ma.Int64("OutputTokens")
		total += ma.Int64("TotalTokens")
	}
	return
}
