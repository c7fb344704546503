package mcp

import (
	"encoding/json"
	"fmt"
)

const (
	// ProtocolVersion is the protocol revision this client negotiates.
	ProtocolVersion = "2025-03-26"

	// SessionHeader carries the server-assigned session identifier on
	// stateful endpoints.
	SessionHeader = "Mcp-Session-Id"

	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodListTools   = "tools/list"
	methodCallTool    = "tools/call"
)

// jsonrpcRequest is a JSON-RPC 2.0 request, or a notification when ID is nil.
type jsonrpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// RemoteError is a JSON-RPC error object returned by a tool server.
// It reports a tool-level failure, not a transport one: the server
// understood the request and declined it.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Implementation identifies a protocol party in the initialize exchange.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is the server half of the handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ServerInfo      Implementation `json:"serverInfo"`
}

// ToolDescriptor describes one tool advertised by an endpoint.
// InputSchema is kept raw; the catalog layer normalizes it.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is one page of a tools/list response.
type ListToolsResult struct {
	Tools      []ToolDescriptor `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ContentSegment is one element of a tool result content array.
type ContentSegment struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the result payload of tools/call. IsError marks an
// execution failure the server chose to report in-band.
type CallToolResult struct {
	Content           []ContentSegment `json:"content"`
	StructuredContent json.RawMessage  `json:"structuredContent,omitempty"`
	IsError           bool             `json:"isError,omitempty"`
}
