package agent

import (
	"regexp"
	"strings"
	"time"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
	"github.com/orderpilot-ai/orderpilot/pkg/prompts"
	"github.com/orderpilot-ai/orderpilot/session"
)

var systemPrompt = prompts.NewSystemMessagePromptTemplate(`You are OrderPilot, an assistant that helps the user order food and book tables through the connected services.

Today is {{.today}}.

Rules:
- Use the provided tools for every real-world fact or action. Never invent restaurants, menus, prices, or order confirmations.
- Reuse identifiers from the session context instead of repeating discovery calls.
- Before placing an order or booking a table, summarize the cart or reservation and ask the user to confirm, unless the user has already confirmed.
- When a tool reports a failure, tell the user plainly what failed. Never claim an action succeeded unless the tool result confirms it.
- Keep replies short and conversational.`, []string{"today"})

// affirmativePattern matches short confirmation replies, and only those:
// a longer message with an embedded "yes" is a new instruction, not a
// confirmation.
var affirmativePattern = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|ok|okay|sure|confirm|confirmed|go ahead|do it|place it|place the order|proceed)\s*[.!]*\s*$`)

// confirmationDirective is appended to an affirmative user turn so the
// model executes the pending side-effecting call instead of assuming it
// already happened.
const confirmationDirective = "The user has just confirmed. Call the tool that places the pending order or booking now; do not reply as if it was already done."

func (a *Agent) systemMessages() ([]llms.Message, error) {
	return systemPrompt.FormatMessages(map[string]any{
		"today": time.Now().Format("Monday, 2 January 2006"),
	})
}

// composeUserTurn annotates the raw input with session hints and, for a
// bare confirmation, the directive to act on it.
func composeUserTurn(input string, sc *session.Context) string {
	sections := []string{input}
	if hints := sc.Hints(); hints != "" {
		sections = append(sections, hints)
	}
	if affirmativePattern.MatchString(input) {
		sections = append(sections, confirmationDirective)
	}
	return strings.Join(sections, "\n\n")
}
