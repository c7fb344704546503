package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderpilot-ai/orderpilot/mcp"
)

const initResultJSON = `{"protocolVersion":"2025-03-26","capabilities":{"tools":{}},"serverInfo":{"name":"food-server","version":"2.1.0"}}`

type rpcEnvelope struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func decodeRPC(t *testing.T, r *http.Request) rpcEnvelope {
	t.Helper()
	var req rpcEnvelope
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
}

func testEndpoint(baseURL string) mcp.Endpoint {
	return mcp.Endpoint{
		Key:        "food",
		BaseURL:    baseURL,
		ToolPrefix: "food_",
	}
}

func TestEnsureConnectionStateful(t *testing.T) {
	var initCount, notifyCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			initCount.Add(1)
			assert.Empty(t, r.Header.Get("Mcp-Session-Id"))
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeResult(w, req.ID, initResultJSON)
		case "notifications/initialized":
			notifyCount.Add(1)
			assert.Equal(t, "sess-1", r.Header.Get("Mcp-Session-Id"))
			w.WriteHeader(http.StatusAccepted)
		default:
			t.Errorf("unexpected method: %s", req.Method)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient(mcp.WithClientInfo("orderpilot-test", "0.1.0"))
	ctx := context.Background()
	ep := testEndpoint(srv.URL)

	conn, err := client.EnsureConnection(ctx, ep, "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", conn.SessionID)
	assert.True(t, conn.Stateful())
	assert.Equal(t, "food-server", conn.ServerInfo.Name)

	// second call returns the cached connection without another handshake
	again, err := client.EnsureConnection(ctx, ep, "secret-token")
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.EqualValues(t, 1, initCount.Load())
	assert.EqualValues(t, 1, notifyCount.Load())
}

func TestEnsureConnectionStateless(t *testing.T) {
	var notifyCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			writeResult(w, req.ID, initResultJSON)
		case "notifications/initialized":
			notifyCount.Add(1)
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)
	assert.Empty(t, conn.SessionID)
	assert.False(t, conn.Stateful())
	assert.EqualValues(t, 0, notifyCount.Load(), "stateless connections must not send initialized")
}

func TestEnsureConnectionAuthRequired(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			client := mcp.NewClient()
			_, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "expired-token")
			require.Error(t, err)
			assert.ErrorIs(t, err, mcp.ErrAuthenticationRequired)
			assert.NotErrorIs(t, err, mcp.ErrHandshakeFailed)
		})
	}
}

func TestEnsureConnectionHandshakeFailed(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := mcp.NewClient()
		_, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
		assert.ErrorIs(t, err, mcp.ErrHandshakeFailed)
	})

	t.Run("invalid payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, "<html>not json</html>")
		}))
		defer srv.Close()

		client := mcp.NewClient()
		_, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
		assert.ErrorIs(t, err, mcp.ErrHandshakeFailed)
	})

	t.Run("rpc error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := decodeRPC(t, r)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32600,"message":"unsupported protocol version"}}`, req.ID)
		}))
		defer srv.Close()

		client := mcp.NewClient()
		_, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, mcp.ErrHandshakeFailed)
		assert.Contains(t, err.Error(), "unsupported protocol version")
	})

	t.Run("unreachable", func(t *testing.T) {
		client := mcp.NewClient(mcp.WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))
		_, err := client.EnsureConnection(context.Background(),
			mcp.Endpoint{Key: "down", BaseURL: "http://127.0.0.1:1", ToolPrefix: "down_"}, "")
		assert.ErrorIs(t, err, mcp.ErrHandshakeFailed)
	})
}

func TestEnsureConnectionSingleFlight(t *testing.T) {
	var initCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			initCount.Add(1)
			time.Sleep(50 * time.Millisecond)
			w.Header().Set("Mcp-Session-Id", "sess-1")
			writeResult(w, req.ID, initResultJSON)
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	ep := testEndpoint(srv.URL)

	const callers = 8
	conns := make([]*mcp.Connection, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = client.EnsureConnection(context.Background(), ep, "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "sess-1", conns[i].SessionID)
	}
	assert.EqualValues(t, 1, initCount.Load(), "concurrent callers must share one handshake")
}

func TestCallSSEResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			writeResult(w, req.ID, initResultJSON)
		case "tools/list":
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, ": keepalive\nevent: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":%s,\"result\":{\"tools\":[{\"name\":\"search_restaurants\",\"description\":\"Search for restaurants\"}]}}\n\n", req.ID)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)

	tools, err := client.ListTools(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "search_restaurants", tools[0].Name)
	assert.Equal(t, "Search for restaurants", tools[0].Description)
}

func TestCallSessionExpiredRetry(t *testing.T) {
	var initCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			n := initCount.Add(1)
			w.Header().Set("Mcp-Session-Id", fmt.Sprintf("sess-%d", n))
			writeResult(w, req.ID, initResultJSON)
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			// the first session is expired; only the re-initialized one works
			if r.Header.Get("Mcp-Session-Id") == "sess-1" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeResult(w, req.ID, `{"tools":[{"name":"get_menu"}]}`)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)
	require.Equal(t, "sess-1", conn.SessionID)

	tools, err := client.ListTools(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_menu", tools[0].Name)
	assert.EqualValues(t, 2, initCount.Load(), "expired session must trigger exactly one re-handshake")
}

func TestCallToolRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			writeResult(w, req.ID, initResultJSON)
		case "tools/call":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32602,"message":"unknown tool: get_weather"}}`, req.ID)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)

	_, err = client.CallTool(context.Background(), conn, "get_weather", `{"city":"Oslo"}`)
	require.Error(t, err)

	var remoteErr *mcp.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, -32602, remoteErr.Code)
	assert.Equal(t, "unknown tool: get_weather", remoteErr.Message)
}

func TestCallTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			writeResult(w, req.ID, initResultJSON)
		case "tools/call":
			var params struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			}
			require.NoError(t, json.Unmarshal(req.Params, &params))
			assert.Equal(t, "add_item", params.Name)
			assert.JSONEq(t, `{"itemId":"pizza-42","quantity":2}`, string(params.Arguments))
			writeResult(w, req.ID, `{"content":[{"type":"text","text":"Added 2 x Margherita to cart"}],"isError":false}`)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)

	res, err := client.CallTool(context.Background(), conn, "add_item", `{"itemId":"pizza-42","quantity":2}`)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	assert.False(t, res.IsError)
	assert.Equal(t, "Added 2 x Margherita to cart", res.Content[0].Text)
}

func TestCallToolEmptyArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			writeResult(w, req.ID, initResultJSON)
		case "tools/call":
			var params struct {
				Arguments json.RawMessage `json:"arguments"`
			}
			require.NoError(t, json.Unmarshal(req.Params, &params))
			assert.JSONEq(t, `{}`, string(params.Arguments))
			writeResult(w, req.ID, `{"content":[{"type":"text","text":"{}"}]}`)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)

	_, err = client.CallTool(context.Background(), conn, "view_cart", "")
	require.NoError(t, err)
}

func TestListToolsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "initialize":
			writeResult(w, req.ID, initResultJSON)
		case "tools/list":
			var params struct {
				Cursor string `json:"cursor"`
			}
			_ = json.Unmarshal(req.Params, &params)
			if params.Cursor == "" {
				writeResult(w, req.ID, `{"tools":[{"name":"search_restaurants"},{"name":"get_menu"}],"nextCursor":"page-2"}`)
			} else {
				writeResult(w, req.ID, `{"tools":[{"name":"checkout"}]}`)
			}
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)

	tools, err := client.ListTools(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, "search_restaurants", tools[0].Name)
	assert.Equal(t, "get_menu", tools[1].Name)
	assert.Equal(t, "checkout", tools[2].Name)
}

func TestCallInvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		if req.Method == "initialize" {
			writeResult(w, req.ID, initResultJSON)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "oops, plain text")
	}))
	defer srv.Close()

	client := mcp.NewClient()
	conn, err := client.EnsureConnection(context.Background(), testEndpoint(srv.URL), "")
	require.NoError(t, err)

	_, err = client.ListTools(context.Background(), conn)
	assert.ErrorIs(t, err, mcp.ErrProtocol)
}

func TestInvalidateAndReset(t *testing.T) {
	var initCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		if req.Method == "initialize" {
			initCount.Add(1)
			writeResult(w, req.ID, initResultJSON)
		}
	}))
	defer srv.Close()

	client := mcp.NewClient()
	ctx := context.Background()
	ep := testEndpoint(srv.URL)

	_, err := client.EnsureConnection(ctx, ep, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, initCount.Load())

	client.Invalidate(ep.BaseURL)
	_, err = client.EnsureConnection(ctx, ep, "")
	require.NoError(t, err)
	require.EqualValues(t, 2, initCount.Load())

	client.Reset()
	_, err = client.EnsureConnection(ctx, ep, "")
	require.NoError(t, err)
	require.EqualValues(t, 3, initCount.Load())
}
