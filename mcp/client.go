// Package mcp implements the client side of the Model Context Protocol
// over streamable HTTP. It maintains one initialized connection per
// endpoint and exposes tool listing and invocation on top of it.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/singleflight"

	"github.com/orderpilot-ai/orderpilot/pkg/metricskey"
)

var logger = xlog.NewPackageLogger("github.com/orderpilot-ai/orderpilot", "mcp")

var (
	// ErrAuthenticationRequired is returned when an endpoint rejects the
	// presented credential.
	ErrAuthenticationRequired = errors.New("mcp: authentication required")
	// ErrHandshakeFailed is returned when the initialize exchange with an
	// endpoint does not complete.
	ErrHandshakeFailed = errors.New("mcp: handshake failed")
	// ErrProtocol is returned when an endpoint responds outside the
	// JSON-RPC protocol.
	ErrProtocol = errors.New("mcp: protocol error")

	// errSessionNotFound marks an HTTP 404 on an established connection,
	// meaning the server expired the session.
	errSessionNotFound = errors.New("mcp: session not found")
)

const (
	// DefaultRequestTimeout bounds a single HTTP exchange with an endpoint.
	DefaultRequestTimeout = 60 * time.Second

	maxSSELineSize   = 1024 * 1024
	maxErrorBodySize = 512
)

// Connection is an initialized link to one endpoint. A connection without
// a session ID operates in stateless mode and omits the session header.
type Connection struct {
	Endpoint   Endpoint
	SessionID  string
	Credential string
	ServerInfo Implementation
}

// Stateful reports whether the endpoint assigned a session during the
// handshake.
func (c *Connection) Stateful() bool {
	return c.SessionID != ""
}

// Client manages connections to remote tool servers. Connections are
// established lazily and cached by endpoint URL; concurrent callers for
// the same endpoint share a single handshake.
type Client struct {
	client     *http.Client
	clientInfo Implementation

	lock  sync.RWMutex
	conns map[string]*Connection
	group singleflight.Group
	reqID atomic.Int64
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for all exchanges.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithClientInfo sets the client identity sent in the initialize request.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.clientInfo = Implementation{Name: name, Version: version}
	}
}

// NewClient returns a Client with no established connections.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		client:     &http.Client{Timeout: DefaultRequestTimeout},
		clientInfo: Implementation{Name: "orderpilot", Version: "1.0.0"},
		conns:      make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureConnection returns the cached connection for the endpoint, or
// performs the initialize handshake and caches the result. The credential
// is attached as a bearer token on every exchange when non-empty.
func (c *Client) EnsureConnection(ctx context.Context, ep Endpoint, credential string) (*Connection, error) {
	c.lock.RLock()
	conn := c.conns[ep.BaseURL]
	c.lock.RUnlock()
	if conn != nil {
		return conn, nil
	}

	v, err, _ := c.group.Do(ep.BaseURL, func() (any, error) {
		// re-check under the group: a concurrent handshake may have
		// populated the cache between the read and the Do call
		c.lock.RLock()
		cached := c.conns[ep.BaseURL]
		c.lock.RUnlock()
		if cached != nil {
			return cached, nil
		}

		fresh, err := c.handshake(ctx, ep, credential)
		if err != nil {
			return nil, err
		}
		c.lock.Lock()
		c.conns[ep.BaseURL] = fresh
		c.lock.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

// Invalidate drops the cached connection for an endpoint URL. The next
// EnsureConnection performs a fresh handshake.
func (c *Client) Invalidate(baseURL string) {
	c.lock.Lock()
	delete(c.conns, baseURL)
	c.lock.Unlock()
}

// Reset drops all cached connections, forcing fresh handshakes. Callers
// use it when credentials rotate.
func (c *Client) Reset() {
	c.lock.Lock()
	dropped := maps.Keys(c.conns)
	c.conns = make(map[string]*Connection)
	c.lock.Unlock()

	if len(dropped) > 0 {
		logger.KV(xlog.DEBUG, "status", "connections_reset", "endpoints", dropped)
	}
}

func (c *Client) handshake(ctx context.Context, ep Endpoint, credential string) (*Connection, error) {
	started := time.Now()
	defer metricskey.PerfEndpointHandshake.MeasureSince(started, ep.Key)

	conn := &Connection{Endpoint: ep, Credential: credential}
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      c.clientInfo,
	}
	id := c.reqID.Add(1)
	res, header, err := c.roundTrip(ctx, conn, &jsonrpcRequest{
		Jsonrpc: "2.0",
		ID:      &id,
		Method:  methodInitialize,
		Params:  params,
	})
	if err != nil {
		if errors.Is(err, ErrAuthenticationRequired) {
			return nil, err
		}
		return nil, errors.WithMessagef(ErrHandshakeFailed, "endpoint %s: %s", ep.Key, err.Error())
	}
	if res == nil {
		return nil, errors.WithMessagef(ErrHandshakeFailed, "endpoint %s: empty response", ep.Key)
	}
	if res.Error != nil {
		return nil, errors.WithMessagef(ErrHandshakeFailed, "endpoint %s: %s", ep.Key, res.Error.Message)
	}

	var init InitializeResult
	if err := json.Unmarshal(res.Result, &init); err != nil {
		return nil, errors.WithMessagef(ErrHandshakeFailed, "endpoint %s: invalid initialize result: %s", ep.Key, err.Error())
	}
	conn.ServerInfo = init.ServerInfo

	if sid := header.Get(SessionHeader); sid != "" {
		conn.SessionID = sid
		// the session is live once the header arrives; a failed
		// initialized notification is logged and not treated as fatal
		if nerr := c.notify(ctx, conn, methodInitialized); nerr != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"endpoint", ep.Key,
				"status", "initialized_notification_failed",
				"err", nerr.Error())
		}
	}

	metricskey.StatsEndpointSessionsStarted.IncrCounter(1, ep.Key)
	logger.ContextKV(ctx, xlog.DEBUG,
		"endpoint", ep.Key,
		"server", init.ServerInfo.Name,
		"stateful", conn.Stateful())
	return conn, nil
}

func (c *Client) notify(ctx context.Context, conn *Connection, method string) error {
	_, _, err := c.roundTrip(ctx, conn, &jsonrpcRequest{
		Jsonrpc: "2.0",
		Method:  method,
	})
	return err
}

// roundTrip posts one JSON-RPC message to the connection's endpoint and
// returns the parsed response envelope. A nil envelope with nil error
// means the server accepted a notification without a body.
func (c *Client) roundTrip(ctx context.Context, conn *Connection, msg *jsonrpcRequest) (*jsonrpcResponse, http.Header, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conn.Endpoint.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if conn.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+conn.Credential)
	}
	if conn.SessionID != "" {
		req.Header.Set(SessionHeader, conn.SessionID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "endpoint %s unreachable", conn.Endpoint.Key)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metricskey.StatsEndpointAuthFailures.IncrCounter(1, conn.Endpoint.Key)
		return nil, resp.Header, errors.WithMessagef(ErrAuthenticationRequired,
			"endpoint %s responded %s", conn.Endpoint.Key, resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.Header, errors.WithMessagef(errSessionNotFound,
			"endpoint %s responded %s", conn.Endpoint.Key, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, resp.Header, errors.WithMessagef(ErrProtocol,
			"endpoint %s responded %s: %s", conn.Endpoint.Key, resp.Status, string(snippet))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		res, err := parseSSEResponse(resp.Body)
		return res, resp.Header, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, errors.WithStack(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, resp.Header, nil
	}
	var res jsonrpcResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, resp.Header, errors.WithMessagef(ErrProtocol,
			"endpoint %s: invalid response payload: %s", conn.Endpoint.Key, err.Error())
	}
	return &res, resp.Header, nil
}

// parseSSEResponse extracts the first JSON-RPC message from an event
// stream. Streamable HTTP servers may deliver the response as a single
// SSE event; only the data lines of the first event are considered.
func parseSSEResponse(r io.Reader) (*jsonrpcResponse, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(after, " "))
			continue
		}
		if line == "" && len(data) > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithMessagef(ErrProtocol, "reading event stream: %s", err.Error())
	}
	if len(data) == 0 {
		return nil, errors.WithMessage(ErrProtocol, "event stream contained no data")
	}

	var res jsonrpcResponse
	if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &res); err != nil {
		return nil, errors.WithMessagef(ErrProtocol, "invalid event stream payload: %s", err.Error())
	}
	return &res, nil
}
