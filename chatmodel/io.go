package chatmodel

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

// ErrFailedUnmarshalInput is returned verbatim to the model so it can
// correct the payload and retry.
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")

// ContentProvider is implemented by typed inputs and outputs that expose
// plain text for the chat history.
type ContentProvider interface {
	GetContent() string
}

// InputParser is implemented by typed inputs that parse their own raw payload.
type InputParser interface {
	ParseInput(raw string) error
}

// InputRequest is the plain chat input sent to the agent.
type InputRequest struct {
	Input string `json:"input" jsonschema:"title=Input,description=The message sent by the user to the assistant."`
}

// NewInputRequest creates an InputRequest with the given input.
func NewInputRequest(input string) *InputRequest {
	return &InputRequest{Input: input}
}

// GetContent gets the content of the message for the chat history
func (r *InputRequest) GetContent() string {
	return r.Input
}

// ParseInput parses a raw JSON payload into the request.
func (r *InputRequest) ParseInput(raw string) error {
	if err := json.Unmarshal([]byte(raw), r); err != nil {
		return errors.WithStack(ErrFailedUnmarshalInput)
	}
	return nil
}

// JSONSchemaExtend sets the schema title; invoked by the schema reflector.
func (InputRequest) JSONSchemaExtend(sc *jsonschema.Schema) {
	sc.Title = "Input Request"
}

// OutputResult is the plain text result returned by the agent or a tool.
type OutputResult struct {
	Content string `json:"content" jsonschema:"title=Response Content,description=The content returned by agent or tool."`
}

// NewOutputResult creates an OutputResult with the given content.
func NewOutputResult(content string) *OutputResult {
	return &OutputResult{Content: content}
}

// GetContent gets the content of the message for the chat history
func (r OutputResult) GetContent() string {
	return r.Content
}
