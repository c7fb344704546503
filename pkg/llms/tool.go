package llms

import (
	"github.com/invopop/jsonschema"
)

// Tool describes one callable tool offered to the model. Type is always
// "function" for the providers this package supports.
type Tool struct {
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition is the callable side of a Tool: its name, what it does,
// and the JSON schema of its arguments.
type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
	// Strict asks OpenAI to enforce the parameter schema exactly.
	Strict bool `json:"strict,omitempty"`
}

// ToolChoice forces the model to call one specific tool.
type ToolChoice struct {
	Type     string             `json:"type"`
	Function *FunctionReference `json:"function,omitempty"`
}

// FunctionReference names a function within a ToolChoice.
type FunctionReference struct {
	Name string `json:"name"`
}
