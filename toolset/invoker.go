package toolset

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"

	"github.com/orderpilot-ai/orderpilot/mcp"
	"github.com/orderpilot-ai/orderpilot/pkg/metricskey"
)

// Resolve maps a namespaced tool name to its owning endpoint and the
// endpoint-local name. Resolution is syntactic against the configured
// prefixes; the endpoint stays authoritative for tool existence.
func (a *Aggregator) Resolve(name string) (mcp.Endpoint, string, error) {
	for _, ep := range a.endpoints {
		if rest, ok := strings.CutPrefix(name, ep.ToolPrefix); ok && rest != "" {
			return ep, rest, nil
		}
	}
	return mcp.Endpoint{}, "", errors.WithMessagef(ErrUnknownTool, "%s", name)
}

// CallTool executes a namespaced tool and renders its result as text.
// Arguments must be a JSON object.
func (a *Aggregator) CallTool(ctx context.Context, name, arguments, credential string) (string, error) {
	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, name)

	ep, remoteName, err := a.Resolve(name)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		return "", err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", name,
		"endpoint", ep.Key,
		"args", slices.StringUpto(arguments, 64))

	conn, err := a.client.EnsureConnection(ctx, ep, credential)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		return "", err
	}

	res, err := a.client.CallTool(ctx, conn, remoteName, arguments)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		var remoteErr *mcp.RemoteError
		if errors.As(err, &remoteErr) {
			return "", errors.WithMessagef(ErrToolInvocation, "%s: %s", name, remoteErr.Message)
		}
		return "", err
	}

	text := renderResult(res)
	if res.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.WithMessagef(ErrToolInvocation, "%s: %s", name, text)
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	return text, nil
}

// renderResult joins the textual segments of a tool result; structured
// content is serialized only when no text was returned.
func renderResult(res *mcp.CallToolResult) string {
	var parts []string
	for _, seg := range res.Content {
		if seg.Type == "text" && seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	if len(res.StructuredContent) > 0 {
		return string(res.StructuredContent)
	}
	return ""
}
