package llms

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleSystem is the instruction prompt that frames the conversation.
	RoleSystem Role = "system"
	// RoleHuman is a message typed by the user.
	RoleHuman Role = "human"
	// RoleAI is a message produced by the model, including tool-call requests.
	RoleAI Role = "ai"
	// RoleTool carries the results of executed tool calls back to the model.
	RoleTool Role = "tool"
	// RoleGeneric is a message without a fixed author, used for few-shot turns.
	RoleGeneric Role = "generic"
)

// Message is one turn of a conversation: a role plus an ordered sequence of
// content parts. A user turn is usually a single text part; an AI turn may mix
// text with tool calls, and a tool turn carries the call results.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// ContentPart is one item within a message. Implementations are TextContent,
// ToolCall and ToolCallResponse.
type ContentPart interface {
	isPart()
}

// TextContent is a plain text part.
type TextContent struct {
	Text string `json:"text"`
}

func (tc TextContent) String() string {
	return tc.Text
}

func (TextContent) isPart() {}

// FunctionCall names a function the model wants invoked, with its arguments
// as a JSON string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a request by the model to execute a tool. Type is "function"
// for every provider this package supports.
type ToolCall struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

func (tc ToolCall) String() string {
	if tc.FunctionCall == nil {
		return "tool call " + tc.ID
	}
	return fmt.Sprintf("tool call %s: %s(%s)", tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
}

func (ToolCall) isPart() {}

// ToolCallResponse is the result of an executed tool call, keyed back to the
// originating call by ToolCallID.
type ToolCallResponse struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

func (tc ToolCallResponse) String() string {
	return fmt.Sprintf("tool response %s: %s (%d bytes)", tc.ToolCallID, tc.Name, len(tc.Content))
}

func (ToolCallResponse) isPart() {}

// TextPart wraps a string in a TextContent part.
func TextPart(s string) TextContent {
	return TextContent{Text: s}
}

// MessageFromParts assembles a Message from a role and parts.
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{Role: role, Parts: parts}
}

// MessageFromTextParts assembles a Message where every part is plain text.
func MessageFromTextParts(role Role, parts ...string) Message {
	msg := Message{Role: role, Parts: make([]ContentPart, 0, len(parts))}
	for _, p := range parts {
		msg.Parts = append(msg.Parts, TextPart(p))
	}
	return msg
}

// MessageFromToolCalls assembles a Message carrying tool-call requests.
// FunctionCall payloads are copied so the caller may reuse its slice.
func MessageFromToolCalls(role Role, toolCalls ...ToolCall) Message {
	msg := Message{Role: role, Parts: make([]ContentPart, 0, len(toolCalls))}
	for _, tc := range toolCalls {
		part := ToolCall{ID: tc.ID, Type: tc.Type}
		if tc.FunctionCall != nil {
			fc := *tc.FunctionCall
			part.FunctionCall = &fc
		}
		msg.Parts = append(msg.Parts, part)
	}
	return msg
}

// MessageFromToolResponse assembles a Message carrying one tool result.
func MessageFromToolResponse(role Role, toolResponse ToolCallResponse) Message {
	return MessageFromParts(role, toolResponse)
}

// GetContent flattens the message into readable text for history matching and
// transcripts. Parts are newline-separated; non-empty output ends with a
// newline.
func (m Message) GetContent() string {
	var buf strings.Builder
	endsWithNewline := true
	for _, p := range m.Parts {
		text := renderPart(p)
		if text == "" {
			continue
		}
		if !endsWithNewline {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
		endsWithNewline = strings.HasSuffix(text, "\n")
	}
	if !endsWithNewline {
		buf.WriteByte('\n')
	}
	return buf.String()
}

func renderPart(p ContentPart) string {
	switch v := p.(type) {
	case TextContent:
		return v.Text
	case ToolCall:
		js, _ := json.Marshal(v)
		return "Tool Call: " + string(js) + "\n"
	case ToolCallResponse:
		js, _ := json.Marshal(v)
		return "Response: " + string(js) + "\n"
	}
	return ""
}
