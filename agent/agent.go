// Package agent runs the bounded model/tool exchange that turns one user
// message into a final reply: it aggregates the tool catalog, alternates
// model calls with sequential tool executions, folds tool results back
// into the transcript, and verifies side-effecting outcomes before
// letting the model claim them.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/orderpilot-ai/orderpilot/chatmodel"
	"github.com/orderpilot-ai/orderpilot/outcome"
	"github.com/orderpilot-ai/orderpilot/pkg/llms"
	"github.com/orderpilot-ai/orderpilot/pkg/llmutils"
	"github.com/orderpilot-ai/orderpilot/pkg/metricskey"
	"github.com/orderpilot-ai/orderpilot/session"
	"github.com/orderpilot-ai/orderpilot/toolset"
)

var logger = xlog.NewPackageLogger("github.com/orderpilot-ai/orderpilot", "agent")

// DefaultMaxRounds bounds model/tool exchanges per user message.
const DefaultMaxRounds = 15

// Stop reasons reported to the front-end. Replies the model produced
// carry the provider's own stop reason instead.
const (
	StopEndTurn    = "end_turn"
	StopNoTools    = "no_tools"
	StopReplyLimit = "reply_limit"
)

// Fixed user-visible replies for terminal conditions the model never
// gets to handle.
const (
	noToolsReply    = "None of the ordering services are reachable right now, so I cannot help with this request. Please try again in a few minutes."
	replyLimitReply = "I have reached the reply limit for this request without finishing. Please send a new message to continue."
	emptyReply      = "I could not produce a response for that. Could you rephrase your request?"
)

// Request is one user turn. History carries the prior turns verbatim;
// the front-end owns its retention and trimming.
type Request struct {
	Input      string
	History    []llms.Message
	Credential string
}

// Usage aggregates model and tool activity across the rounds of one
// Respond call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Rounds       int
	ToolCalls    int
}

// Reply is the final user-facing result of one Respond call.
type Reply struct {
	Content    string
	StopReason string
	Usage      Usage
}

// Agent orchestrates one conversation turn at a time. Safe for
// concurrent use: all per-turn state lives in Respond.
type Agent struct {
	llm     llms.Model
	tools   *toolset.Aggregator
	store   session.Store
	tracker *session.Tracker
	cfg     *Config
	name    string
}

func New(llm llms.Model, tools *toolset.Aggregator, store session.Store, opts ...Option) *Agent {
	if store == nil {
		store = session.NewMemoryStore()
	}
	return &Agent{
		llm:     llm,
		tools:   tools,
		store:   store,
		tracker: session.NewTracker(),
		cfg:     NewConfig(opts...),
		name:    "orderpilot",
	}
}

// WithName sets the agent name used in logs and metrics.
func (a *Agent) WithName(name string) *Agent {
	a.name = name
	return a
}

func (a *Agent) Name() string {
	return a.name
}

// Respond executes the full loop for one user message. The context must
// carry a chat context (chatmodel) identifying the conversation.
func (a *Agent) Respond(ctx context.Context, req *Request) (*Reply, error) {
	started := time.Now()
	defer metricskey.PerfChatRun.MeasureSince(started, a.name)

	reply, err := a.run(ctx, req)
	if err != nil {
		metricskey.StatsAssistantCallsFailed.IncrCounter(1, a.name)
		return nil, err
	}
	metricskey.StatsAssistantCallsSucceeded.IncrCounter(1, a.name)
	return reply, nil
}

func (a *Agent) run(ctx context.Context, req *Request) (*Reply, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, errors.WithStack(chatmodel.ErrInvalidChatContext)
	}

	catalog, err := a.tools.ListAllTools(ctx, req.Credential)
	if err != nil || len(catalog) == 0 {
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", a.name,
			"status", "no_tools_available",
			"err", errString(err),
		)
		return &Reply{Content: noToolsReply, StopReason: StopNoTools}, nil
	}

	sc := a.loadContext(ctx)
	verifier := outcome.NewVerifier(a.cfg.SideEffects)

	sysMessages, err := a.systemMessages()
	if err != nil {
		return nil, errors.WithMessage(err, "failed to format system prompt")
	}
	transcript := make([]llms.Message, 0, len(sysMessages)+len(req.History)+1)
	transcript = append(transcript, sysMessages...)
	transcript = append(transcript, req.History...)
	transcript = append(transcript, llms.MessageFromTextParts(llms.RoleHuman, composeUserTurn(req.Input, sc)))

	byName := make(map[string]toolset.Tool, len(catalog))
	for _, tool := range catalog {
		byName[tool.Name] = tool
	}
	callOpts := a.cfg.callOptions(toolset.LLMTools(catalog))
	// The system prompt and the tool catalog repeat verbatim on every
	// round, so they are the cacheable prefix of each request.
	callOpts = append(callOpts, llms.WithPromptCachePolicy(cachePolicy(tenantID, chatID, len(catalog))))
	modelName := a.llm.GetName()

	var usage Usage
	for round := 1; round <= a.cfg.MaxRounds; round++ {
		usage.Rounds = round
		if cb := a.cfg.Callback; cb != nil {
			cb.OnRoundStart(ctx, round)
		}

		callStart := time.Now()
		sentBytes := llmutils.CountMessagesContentSize(transcript)
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(transcript)), a.name, modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(sentBytes), a.name, modelName)

		resp, err := a.llm.GenerateContent(ctx, transcript, callOpts...)
		metricskey.PerfAssistantCall.MeasureSince(callStart, a.name)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to generate content")
		}
		recvBytes := llmutils.CountResponseContentSize(resp)
		metricskey.StatsLLMBytesReceived.IncrCounter(float64(recvBytes), a.name, modelName)
		metricskey.StatsLLMBytesTotal.IncrCounter(float64(sentBytes+recvBytes), a.name, modelName)

		in, out, total := llmutils.CountTokens(resp)
		usage.InputTokens += in
		usage.OutputTokens += out
		metricskey.StatsLLMInputTokens.IncrCounter(float64(in), a.name, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(out), a.name, modelName)
		metricskey.StatsLLMTotalTokens.IncrCounter(float64(total), a.name, modelName)

		var choice *llms.ContentChoice
		if len(resp.Choices) > 0 {
			choice = resp.Choices[0]
		}

		if choice == nil || (len(choice.ToolCalls) == 0 && strings.TrimSpace(choice.Content) == "") {
			// the model stopped without text or tool requests
			metricskey.StatsAssistantLLMParseErrors.IncrCounter(1, a.name)
			a.saveContext(ctx, sc)
			return &Reply{Content: emptyReply, StopReason: stopReason(choice), Usage: usage}, nil
		}

		if len(choice.ToolCalls) == 0 {
			final, _ := verifier.Override(choice.Content)
			a.saveContext(ctx, sc)
			return &Reply{Content: final, StopReason: stopReason(choice), Usage: usage}, nil
		}

		calls := normalizeCalls(choice.ToolCalls)
		transcript = append(transcript, assistantTurn(choice, calls))
		transcript = append(transcript, a.executeRound(ctx, req.Credential, calls, byName, sc, verifier, &usage))
	}

	logger.ContextKV(ctx, xlog.WARNING,
		"agent", a.name,
		"status", "round_limit_reached",
		"rounds", a.cfg.MaxRounds,
	)
	a.saveContext(ctx, sc)
	return &Reply{Content: replyLimitReply, StopReason: StopReplyLimit, Usage: usage}, nil
}

// executeRound runs the requested calls strictly in order, so a later
// call in the round can rely on session context mutated by an earlier
// one, and returns the single tool turn carrying all results tagged by
// their originating call.
func (a *Agent) executeRound(ctx context.Context, credential string, calls []llms.ToolCall, byName map[string]toolset.Tool, sc *session.Context, verifier *outcome.Verifier, usage *Usage) llms.Message {
	parts := make([]llms.ContentPart, 0, len(calls))
	for _, tc := range calls {
		name := tc.FunctionCall.Name
		args := tc.FunctionCall.Arguments
		if verifier.Matches(name) {
			args = backfillIdentifiers(args, byName[name], sc)
		}
		if cb := a.cfg.Callback; cb != nil {
			cb.OnToolCall(ctx, name, args)
		}

		usage.ToolCalls++
		result, err := a.tools.CallTool(ctx, name, args, credential)
		if err != nil {
			// fed back to the model as result text; the loop never
			// aborts over one failed call
			verifier.RecordFailure(name, err.Error())
			result = fmt.Sprintf("Tool call failed: %s", err.Error())
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", a.name,
				"status", "tool_call_failed",
				"tool", name,
				"err", err.Error(),
			)
		} else {
			a.tracker.Observe(sc, name, args, result)
			verifier.Record(name, result)
		}
		if cb := a.cfg.Callback; cb != nil {
			cb.OnToolResult(ctx, name, result, err)
		}

		parts = append(parts, llms.ToolCallResponse{
			ToolCallID: tc.ID,
			Name:       name,
			Content:    result,
		})
	}
	return llms.MessageFromParts(llms.RoleTool, parts...)
}

// identifier fields the ordering APIs expect on side-effecting calls,
// paired with their session context source.
var contextIdentifiers = []struct {
	key string
	get func(*session.Context) string
}{
	{"addressId", func(sc *session.Context) string { return sc.AddressID }},
	{"restaurantId", func(sc *session.Context) string { return sc.RestaurantID }},
	{"cartId", func(sc *session.Context) string { return sc.CartID }},
}

// backfillIdentifiers adds known identifiers the model omitted from a
// side-effecting call. Only keys the tool's schema declares are added; a
// tool without a schema accepts any of them.
func backfillIdentifiers(args string, tool toolset.Tool, sc *session.Context) string {
	if sc == nil || sc.Empty() {
		return args
	}
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	for _, ident := range contextIdentifiers {
		val := ident.get(sc)
		if val == "" || gjson.Get(args, ident.key).Exists() || !schemaAccepts(tool.Parameters, ident.key) {
			continue
		}
		if updated, err := sjson.Set(args, ident.key, val); err == nil {
			args = updated
		}
	}
	return args
}

func schemaAccepts(s *jsonschema.Schema, key string) bool {
	if s == nil || s.Properties == nil || s.Properties.Len() == 0 {
		return true
	}
	_, ok := s.Properties.Get(key)
	return ok
}

// normalizeCalls fills in the fields some providers omit, so every
// result can be tied back to its originating request, and repairs
// argument payloads the model wrapped in prose or code fences.
func normalizeCalls(calls []llms.ToolCall) []llms.ToolCall {
	out := make([]llms.ToolCall, 0, len(calls))
	for _, tc := range calls {
		if tc.FunctionCall == nil {
			continue
		}
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		tc.Type = values.StringsCoalesce(tc.Type, "function")
		if !gjson.Valid(tc.FunctionCall.Arguments) {
			fc := *tc.FunctionCall
			fc.Arguments = llmutils.NormalizeArgs(fc.Arguments)
			tc.FunctionCall = &fc
		}
		out = append(out, tc)
	}
	return out
}

// assistantTurn preserves the model's round output verbatim: any text it
// produced alongside the tool requests stays in the transcript.
func assistantTurn(choice *llms.ContentChoice, calls []llms.ToolCall) llms.Message {
	parts := make([]llms.ContentPart, 0, len(calls)+1)
	if choice.Content != "" {
		parts = append(parts, llms.TextPart(choice.Content))
	}
	for _, tc := range calls {
		parts = append(parts, tc)
	}
	return llms.MessageFromParts(llms.RoleAI, parts...)
}

func (a *Agent) loadContext(ctx context.Context) *session.Context {
	sc, err := a.store.Load(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", a.name,
			"status", "session_load_failed",
			"err", err.Error(),
		)
		return &session.Context{}
	}
	return sc
}

func (a *Agent) saveContext(ctx context.Context, sc *session.Context) {
	if err := a.store.Save(ctx, sc); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", a.name,
			"status", "session_save_failed",
			"err", err.Error(),
		)
	}
}

func stopReason(choice *llms.ContentChoice) string {
	if choice == nil {
		return StopEndTurn
	}
	return values.StringsCoalesce(choice.StopReason, StopEndTurn)
}

func errString(err error) string {
	if err == nil {
		return "empty catalog"
	}
	return err.Error()
}
