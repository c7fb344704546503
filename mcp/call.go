package mcp

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/orderpilot-ai/orderpilot/pkg/metricskey"
)

// Call issues a JSON-RPC method on an established connection and
// unmarshals the result into out when out is non-nil. When a stateful
// endpoint reports the session gone (HTTP 404), the connection is
// re-initialized and the call retried once.
func (c *Client) Call(ctx context.Context, conn *Connection, method string, params, out any) error {
	res, err := c.callOnce(ctx, conn, method, params)
	if err != nil && errors.Is(err, errSessionNotFound) && conn.Stateful() {
		metricskey.StatsEndpointCallsRetried.IncrCounter(1, conn.Endpoint.Key)
		logger.ContextKV(ctx, xlog.DEBUG,
			"endpoint", conn.Endpoint.Key,
			"status", "session_expired",
			"method", method)

		c.Invalidate(conn.Endpoint.BaseURL)
		fresh, herr := c.EnsureConnection(ctx, conn.Endpoint, conn.Credential)
		if herr != nil {
			return herr
		}
		conn = fresh
		res, err = c.callOnce(ctx, conn, method, params)
	}
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			return errors.WithMessagef(ErrProtocol, "endpoint %s: %s", conn.Endpoint.Key, err.Error())
		}
		return err
	}
	if res == nil {
		return errors.WithMessagef(ErrProtocol, "endpoint %s: empty response", conn.Endpoint.Key)
	}
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if out != nil && len(res.Result) > 0 {
		if err := json.Unmarshal(res.Result, out); err != nil {
			return errors.WithMessagef(ErrProtocol, "endpoint %s: invalid result payload: %s",
				conn.Endpoint.Key, err.Error())
		}
	}
	return nil
}

func (c *Client) callOnce(ctx context.Context, conn *Connection, method string, params any) (*jsonrpcResponse, error) {
	id := c.reqID.Add(1)
	res, _, err := c.roundTrip(ctx, conn, &jsonrpcRequest{
		Jsonrpc: "2.0",
		ID:      &id,
		Method:  method,
		Params:  params,
	})
	return res, err
}

// ListTools fetches the endpoint's advertised tools, following cursor
// pagination until the listing is exhausted.
func (c *Client) ListTools(ctx context.Context, conn *Connection) ([]ToolDescriptor, error) {
	var tools []ToolDescriptor
	cursor := ""
	for {
		var page ListToolsResult
		if err := c.Call(ctx, conn, methodListTools, listToolsParams{Cursor: cursor}, &page); err != nil {
			return nil, err
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool invokes a tool by its endpoint-local name. Arguments must be a
// JSON object; an empty string is sent as {}.
func (c *Client) CallTool(ctx context.Context, conn *Connection, name, arguments string) (*CallToolResult, error) {
	if arguments == "" {
		arguments = "{}"
	}
	params := callToolParams{
		Name:      name,
		Arguments: json.RawMessage(arguments),
	}
	var res CallToolResult
	if err := c.Call(ctx, conn, methodCallTool, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
