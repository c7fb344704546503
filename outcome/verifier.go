// Package outcome independently verifies the results of side-effecting
// tool calls (order placement, checkout, booking), so the agent never
// echoes a success the tool server did not actually report.
package outcome

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"

	"github.com/orderpilot-ai/orderpilot/pkg/metricskey"
)

var logger = xlog.NewPackageLogger("github.com/orderpilot-ai/orderpilot", "outcome")

// SideEffectPattern matches tool names whose results change state on the
// remote side and therefore must be verified.
var SideEffectPattern = regexp.MustCompile(`(?i)(order|checkout|book|reserve|purchase)`)

// successClaimVocab flags final model text that asserts a completed
// order or booking.
var successClaimVocab = []string{
	"placed", "confirmed", "successfully ordered", "successfully booked",
	"booked", "order id", "order number", "order #",
}

// Outcome is the verifier's determination for one side-effecting call.
type Outcome struct {
	Tool      string
	Succeeded bool
	Raw       string
}

// Verifier retains the most recent side-effecting outcome of one agent
// loop invocation. Create one per run; it is not safe for concurrent use.
type Verifier struct {
	pattern *regexp.Regexp
	latest  *Outcome
}

// NewVerifier returns a Verifier using the given side-effect pattern,
// or SideEffectPattern when nil.
func NewVerifier(pattern *regexp.Regexp) *Verifier {
	if pattern == nil {
		pattern = SideEffectPattern
	}
	return &Verifier{pattern: pattern}
}

// Matches reports whether the tool name is side-effecting.
func (v *Verifier) Matches(tool string) bool {
	return v.pattern.MatchString(tool)
}

// Record inspects the raw result of a completed tool call. Calls whose
// name does not match the side-effect pattern are ignored; a matching
// one replaces the retained outcome.
func (v *Verifier) Record(tool, raw string) {
	if !v.pattern.MatchString(tool) {
		return
	}
	succeeded := Verify(raw)
	if !succeeded {
		metricskey.StatsOutcomeChecksFailed.IncrCounter(1, tool)
	}
	v.latest = &Outcome{Tool: tool, Succeeded: succeeded, Raw: raw}
}

// RecordFailure retains a failed outcome for a side-effecting call that
// produced no result at all (transport or invocation error).
func (v *Verifier) RecordFailure(tool, detail string) {
	if !v.pattern.MatchString(tool) {
		return
	}
	metricskey.StatsOutcomeChecksFailed.IncrCounter(1, tool)
	v.latest = &Outcome{Tool: tool, Succeeded: false, Raw: detail}
}

// Latest returns the retained outcome, if any.
func (v *Verifier) Latest() (*Outcome, bool) {
	return v.latest, v.latest != nil
}

// Override checks the model's final text against the retained outcome.
// When the text claims a completed order or booking that no verified
// outcome supports, the text is replaced with a failure message derived
// from the outcome's raw content.
func (v *Verifier) Override(finalText string) (string, bool) {
	if !containsAny(finalText, successClaimVocab) {
		return finalText, false
	}
	if v.latest != nil && v.latest.Succeeded {
		return finalText, false
	}

	tool := "none"
	if v.latest != nil {
		tool = v.latest.Tool
	}
	metricskey.StatsOutcomeOverrides.IncrCounter(1, tool)
	logger.KV(xlog.WARNING,
		"status", "final_claim_overridden",
		"tool", tool,
		"claim", slices.StringUpto(finalText, 64))
	return v.failureMessage(), true
}

func (v *Verifier) failureMessage() string {
	var detail string
	if v.latest != nil {
		detail = failureDetail(v.latest.Raw)
	}
	if detail == "" {
		return "I could not verify that the action completed. It does not appear to have gone through, so please check before retrying."
	}
	return fmt.Sprintf("The action did not complete: %s", detail)
}

// failureDetail pulls the most specific status text out of a raw result,
// preferring the nested status message over the top-level one.
func failureDetail(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if gjson.Valid(trimmed) {
		for _, path := range []string{"data.statusMessage", "data.message", "message", "error.message"} {
			if v := gjson.Get(trimmed, path); v.Exists() && !v.IsObject() && !v.IsArray() && v.String() != "" {
				return v.String()
			}
		}
		return ""
	}
	return slices.StringUpto(trimmed, 200)
}
