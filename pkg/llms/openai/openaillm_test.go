package openai_test

import (
	"context"
	"net/http"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
	"github.com/orderpilot-ai/orderpilot/pkg/llms/openai"
	"github.com/orderpilot-ai/orderpilot/pkg/schema"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		opts        []openai.Option
		wantErr     bool
		errContains string
	}{
		{
			name:        "missing token",
			opts:        []openai.Option{openai.WithModel("gpt-5-mini")},
			wantErr:     true,
			errContains: "missing API key",
		},
		{
			name:        "missing model",
			opts:        []openai.Option{openai.WithToken("fake-token")},
			wantErr:     true,
			errContains: "model is required",
		},
		{
			name: "valid configuration",
			opts: []openai.Option{
				openai.WithToken("fake-token"),
				openai.WithModel("gpt-5-mini"),
			},
			wantErr: false,
		},
		{
			name: "with custom base URL",
			opts: []openai.Option{
				openai.WithToken("fake-token"),
				openai.WithModel("gpt-5-mini"),
				openai.WithBaseURL("https://custom.openai.example.com/v1"),
			},
			wantErr: false,
		},
		{
			name: "with organization and HTTP client",
			opts: []openai.Option{
				openai.WithToken("fake-token"),
				openai.WithModel("gpt-5-mini"),
				openai.WithOrganization("org-123"),
				openai.WithHTTPClient(&http.Client{}),
			},
			wantErr: false,
		},
	}

	// New falls back to env vars, so keep them out of the way for the table.
	for _, name := range []string{"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "OPENAI_ORGANIZATION"} {
		if v := os.Getenv(name); v != "" {
			os.Unsetenv(name)
			defer os.Setenv(name, v)
		}
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ollm, err := openai.New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Nil(t, ollm)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, ollm)
				assert.NotNil(t, ollm.Client)
				assert.NotNil(t, ollm.Options)
			}
		})
	}
}

func TestNewWithEnvironmentVariable(t *testing.T) {
	for _, env := range []struct{ name, value string }{
		{"OPENAI_API_KEY", "env-token"},
		{"OPENAI_MODEL", "gpt-5-mini"},
	} {
		original := os.Getenv(env.name)
		os.Setenv(env.name, env.value)
		defer func(name, value string) {
			if value != "" {
				os.Setenv(name, value)
			} else {
				os.Unsetenv(name)
			}
		}(env.name, original)
	}

	llm, err := openai.New()
	require.NoError(t, err)
	assert.NotNil(t, llm)
	assert.Equal(t, "env-token", llm.Options.Token)
	assert.Equal(t, "gpt-5-mini", llm.GetName())
}

func TestGetProviderType(t *testing.T) {
	llm, err := openai.New(
		openai.WithToken("fake-token"),
		openai.WithModel("gpt-5-mini"),
	)
	require.NoError(t, err)

	assert.Equal(t, llms.ProviderOpenAI, llm.GetProviderType())
}

func TestProcessMessages(t *testing.T) {
	t.Parallel()

	t.Run("empty messages", func(t *testing.T) {
		t.Parallel()
		msgs, err := openai.ProcessMessages(nil)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("system message joins text parts", func(t *testing.T) {
		t.Parallel()
		msgs, err := openai.ProcessMessages([]llms.Message{
			{
				Role: llms.RoleSystem,
				Parts: []llms.ContentPart{
					llms.TextPart("You are an ordering assistant."),
					llms.TextPart("Confirm the full order before checkout."),
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].OfSystem)
		assert.Equal(t, "You are an ordering assistant.\nConfirm the full order before checkout.",
			msgs[0].OfSystem.Content.OfString.Value)
	})

	t.Run("human and generic map to user", func(t *testing.T) {
		t.Parallel()
		msgs, err := openai.ProcessMessages([]llms.Message{
			llms.MessageFromTextParts(llms.RoleHuman, "I want sushi for lunch"),
			llms.MessageFromTextParts(llms.RoleGeneric, "deliver to 1 Main St"),
		})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		require.NotNil(t, msgs[0].OfUser)
		require.NotNil(t, msgs[1].OfUser)
		assert.Equal(t, "I want sushi for lunch", msgs[0].OfUser.Content.OfString.Value)
	})

	t.Run("AI message with tool call", func(t *testing.T) {
		t.Parallel()
		msgs, err := openai.ProcessMessages([]llms.Message{
			llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
				ID:   "call_123",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      "search_restaurants",
					Arguments: `{"query": "sushi"}`,
				},
			}),
		})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].OfAssistant)
		require.Len(t, msgs[0].OfAssistant.ToolCalls, 1)
		require.NotNil(t, msgs[0].OfAssistant.ToolCalls[0].OfFunction)
		assert.Equal(t, "call_123", msgs[0].OfAssistant.ToolCalls[0].OfFunction.ID)
		assert.Equal(t, "search_restaurants", msgs[0].OfAssistant.ToolCalls[0].OfFunction.Function.Name)
	})

	t.Run("tool response message", func(t *testing.T) {
		t.Parallel()
		msgs, err := openai.ProcessMessages([]llms.Message{
			llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: "call_123",
				Name:       "search_restaurants",
				Content:    `{"restaurants":[{"id":"r_810","name":"Sushi Go"}]}`,
			}),
		})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].OfTool)
		assert.Equal(t, "call_123", msgs[0].OfTool.ToolCallID)
	})

	t.Run("tool call in human message rejected", func(t *testing.T) {
		t.Parallel()
		_, err := openai.ProcessMessages([]llms.Message{
			{
				Role: llms.RoleHuman,
				Parts: []llms.ContentPart{
					llms.ToolCall{ID: "t1", FunctionCall: &llms.FunctionCall{Name: "get_cart"}},
				},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid content type")
	})

	t.Run("unsupported role", func(t *testing.T) {
		t.Parallel()
		_, err := openai.ProcessMessages([]llms.Message{
			{
				Role:  llms.Role("function"),
				Parts: []llms.ContentPart{llms.TextPart("legacy")},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported message type")
	})
}

func TestHandleAIMessage(t *testing.T) {
	t.Parallel()

	t.Run("text and tool call", func(t *testing.T) {
		t.Parallel()
		msg, err := openai.HandleAIMessage(llms.Message{
			Role: llms.RoleAI,
			Parts: []llms.ContentPart{
				llms.TextPart("Adding that to your cart."),
				llms.ToolCall{
					ID:   "call_42",
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      "add_item",
						Arguments: `{"itemId":"m_11","quantity":1}`,
					},
				},
			},
		})
		require.NoError(t, err)
		require.NotNil(t, msg.OfAssistant)
		assert.Equal(t, "Adding that to your cart.", msg.OfAssistant.Content.OfString.Value)
		require.Len(t, msg.OfAssistant.ToolCalls, 1)
	})

	t.Run("empty parts", func(t *testing.T) {
		t.Parallel()
		_, err := openai.HandleAIMessage(llms.Message{Role: llms.RoleAI})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no valid content")
	})
}

func TestToTools(t *testing.T) {
	t.Parallel()

	type searchParams struct {
		Query string `json:"query" jsonschema:"description=Query to search restaurants for"`
	}
	searchSchema, err := schema.New(reflect.TypeOf(searchParams{}))
	require.NoError(t, err)

	t.Run("empty tools", func(t *testing.T) {
		t.Parallel()
		result, err := openai.ToTools(nil)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("function tool", func(t *testing.T) {
		t.Parallel()
		result, err := openai.ToTools([]llms.Tool{
			{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        "search_restaurants",
					Description: "Search for restaurants",
					Parameters:  searchSchema.Parameters,
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, result, 1)
		require.NotNil(t, result[0].OfFunction)
		assert.Equal(t, "search_restaurants", result[0].OfFunction.Function.Name)
		assert.Contains(t, result[0].OfFunction.Function.Parameters, "properties")
		assert.Equal(t, []string{"query"}, result[0].OfFunction.Function.Parameters["required"])
	})

	t.Run("missing function definition", func(t *testing.T) {
		t.Parallel()
		_, err := openai.ToTools([]llms.Tool{{Type: "function"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing function definition")
	})
}

// newTestClient creates a client for tests that hit the live API.
func newTestClient(t *testing.T, opts ...openai.Option) llms.Model {
	t.Helper()
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey == "" || apiKey == "fakekey" {
		t.Skip("OPENAI_API_KEY not set")
		return nil
	}

	defaultOpts := []openai.Option{
		openai.WithModel("gpt-5-mini"),
	}
	defaultOpts = append(defaultOpts, opts...)

	llm, err := openai.New(defaultOpts...)
	require.NoError(t, err)
	return llm
}

func TestGenerateContentLive(t *testing.T) {
	llm := newTestClient(t)

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{
			llms.MessageFromTextParts(llms.RoleSystem, "You are an ordering assistant. Answer briefly."),
			llms.MessageFromTextParts(llms.RoleHuman, "Name one common pizza topping."),
		},
		llms.WithMaxTokens(100),
	)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Choices)
	assert.NotEmpty(t, strings.TrimSpace(resp.Choices[0].Content))
}
