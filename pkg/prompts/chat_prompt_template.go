package prompts

import (
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
	"github.com/orderpilot-ai/orderpilot/pkg/llmutils"
)

// MessageFormatter is the interface for formatting a list of chat messages
// from a map of template values.
type MessageFormatter interface {
	FormatMessages(values map[string]any) ([]llms.Message, error)
	GetInputVariables() []string
}

// MessagePromptTemplate renders a single chat message with a fixed role from a
// Go text/template. InputVariables lists the template values that must be
// provided; rendering fails if any of them is missing.
type MessagePromptTemplate struct {
	Role           llms.Role
	Template       string
	InputVariables []string
}

var _ MessageFormatter = MessagePromptTemplate{}

// NewSystemMessagePromptTemplate creates a new system message prompt template.
func NewSystemMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:           llms.RoleSystem,
		Template:       tmpl,
		InputVariables: inputVariables,
	}
}

// NewHumanMessagePromptTemplate creates a new human message prompt template.
func NewHumanMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:           llms.RoleHuman,
		Template:       tmpl,
		InputVariables: inputVariables,
	}
}

// NewAIMessagePromptTemplate creates a new AI message prompt template.
func NewAIMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:           llms.RoleAI,
		Template:       tmpl,
		InputVariables: inputVariables,
	}
}

// FormatMessages implements MessageFormatter.
func (p MessagePromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	text, err := renderTemplate(p.Template, p.InputVariables, values)
	if err != nil {
		return nil, err
	}
	return []llms.Message{llms.MessageFromTextParts(p.Role, text)}, nil
}

// GetInputVariables implements MessageFormatter.
func (p MessagePromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}

// ChatPromptValue is the rendered form of a chat prompt. Its String form is
// the readable transcript used in logs and callbacks.
type ChatPromptValue []llms.Message

var _ llms.PromptValue = ChatPromptValue{}

func (v ChatPromptValue) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, v)
	return buf.String()
}

// Messages returns the rendered chat messages.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}

// ChatPromptTemplate is a prompt template for chat messages.
type ChatPromptTemplate struct {
	// Messages is the list of the messages to be formatted.
	Messages []MessageFormatter
}

// NewChatPromptTemplate creates a new chat prompt template from a list of
// message formatters.
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{Messages: messages}
}

// FormatPrompt formats all messages of the template into a prompt value.
func (t ChatPromptTemplate) FormatPrompt(values map[string]any) (llms.PromptValue, error) {
	result := make(ChatPromptValue, 0, len(t.Messages))
	for _, formatter := range t.Messages {
		messages, err := formatter.FormatMessages(values)
		if err != nil {
			return nil, err
		}
		result = append(result, messages...)
	}
	return result, nil
}

// GetInputVariables returns the union of input variables of all messages.
func (t ChatPromptTemplate) GetInputVariables() []string {
	seen := make(map[string]bool)
	var result []string
	for _, formatter := range t.Messages {
		for _, v := range formatter.GetInputVariables() {
			if !seen[v] {
				seen[v] = true
				result = append(result, v)
			}
		}
	}
	return result
}

func renderTemplate(tmpl string, inputVariables []string, values map[string]any) (string, error) {
	for _, name := range inputVariables {
		if _, ok := values[name]; !ok {
			return "", errors.Errorf("prompts: missing value for input variable %q", name)
		}
	}

	parsed, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "prompts: invalid template")
	}

	var buf strings.Builder
	if err := parsed.Execute(&buf, values); err != nil {
		return "", errors.Wrap(err, "prompts: failed to render template")
	}
	return buf.String(), nil
}
