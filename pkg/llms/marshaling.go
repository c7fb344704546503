package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Messages marshal to a compact OpenAI-style JSON form. A message holding a
// single text part collapses to {"role","text"}; everything else becomes a
// "parts" array where each part carries a "type" discriminator. Unmarshaling
// accepts both forms, so stored transcripts keep loading as messages evolve.

// Wire envelopes. Field order defines the marshaled byte layout.
type textPartWire struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type toolCallWire struct {
	FunctionCall *FunctionCall `json:"function"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
}

type toolResponseWire struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok {
			return json.Marshal(struct {
				Role Role   `json:"role"`
				Text string `json:"text,omitempty"`
			}{Role: m.Role, Text: tp.Text})
		}
	}
	return json.Marshal(struct {
		Role  Role          `json:"role"`
		Parts []ContentPart `json:"parts"`
	}{Role: m.Role, Parts: m.Parts})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env struct {
		Role  Role              `json:"role"`
		Text  string            `json:"text"`
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	m.Role = env.Role
	if env.Text != "" {
		m.Parts = []ContentPart{TextContent{Text: env.Text}}
		return nil
	}

	for _, raw := range env.Parts {
		part, err := unmarshalPart(raw)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

// unmarshalPart decodes one element of a "parts" array by its discriminator.
// A part without a "type" field is treated as text.
func unmarshalPart(raw json.RawMessage) (ContentPart, error) {
	var head struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case "text", "":
		return TextContent{Text: head.Text}, nil
	case "tool_call":
		var part ToolCall
		if err := part.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return part, nil
	case "tool_response":
		var part ToolCallResponse
		if err := part.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return part, nil
	default:
		return nil, errors.Newf("unknown content type: '%s'", head.Type)
	}
}

// MarshalJSON implements json.Marshaler.
func (tc TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(textPartWire{Text: tc.Text, Type: "text"})
}

// UnmarshalJSON implements json.Unmarshaler.
func (tc *TextContent) UnmarshalJSON(data []byte) error {
	var wire textPartWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Type != "text" {
		return errors.Newf("invalid type for TextContent: %v", wire.Type)
	}
	tc.Text = wire.Text
	return nil
}

// MarshalJSON implements json.Marshaler.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string       `json:"type"`
		ToolCall toolCallWire `json:"tool_call"`
	}{
		Type: "tool_call",
		ToolCall: toolCallWire{
			FunctionCall: tc.FunctionCall,
			ID:           tc.ID,
			Type:         tc.Type,
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler. The call ID and type are
// required. A missing or malformed "function" value degrades to an empty
// FunctionCall rather than failing the whole transcript.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var env struct {
		Type     string `json:"type"`
		ToolCall *struct {
			ID       string          `json:"id"`
			Type     string          `json:"type"`
			Function json.RawMessage `json:"function"`
		} `json:"tool_call"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Type != "tool_call" {
		return errors.Newf("invalid type for ToolCall: %v", env.Type)
	}
	if env.ToolCall == nil {
		return errors.New("invalid tool_call field in ToolCall")
	}
	if env.ToolCall.ID == "" {
		return errors.New("missing id field in ToolCall")
	}
	if env.ToolCall.Type == "" {
		return errors.New("missing type field in ToolCall")
	}

	fc := FunctionCall{}
	if len(env.ToolCall.Function) > 0 {
		if err := json.Unmarshal(env.ToolCall.Function, &fc); err != nil {
			fc = FunctionCall{}
		}
	}

	tc.ID = env.ToolCall.ID
	tc.Type = env.ToolCall.Type
	tc.FunctionCall = &fc
	return nil
}

// MarshalJSON implements json.Marshaler.
func (tc ToolCallResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string           `json:"type"`
		ToolResponse toolResponseWire `json:"tool_response"`
	}{
		Type: "tool_response",
		ToolResponse: toolResponseWire{
			ToolCallID: tc.ToolCallID,
			Name:       tc.Name,
			Content:    tc.Content,
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler. All three fields are required.
func (tc *ToolCallResponse) UnmarshalJSON(data []byte) error {
	var env struct {
		Type         string           `json:"type"`
		ToolResponse toolResponseWire `json:"tool_response"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Type != "tool_response" {
		return errors.Newf("invalid type for ToolCallResponse: %v", env.Type)
	}
	if env.ToolResponse.ToolCallID == "" {
		return errors.New("missing tool_call_id field in ToolCallResponse")
	}
	if env.ToolResponse.Name == "" {
		return errors.New("missing name field in ToolCallResponse")
	}
	if env.ToolResponse.Content == "" {
		return errors.New("missing content field in ToolCallResponse")
	}
	tc.ToolCallID = env.ToolResponse.ToolCallID
	tc.Name = env.ToolResponse.Name
	tc.Content = env.ToolResponse.Content
	return nil
}
