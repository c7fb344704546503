package toolset_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderpilot-ai/orderpilot/mcp"
	"github.com/orderpilot-ai/orderpilot/toolset"
)

const initResultJSON = `{"protocolVersion":"2025-03-26","capabilities":{"tools":{}},"serverInfo":{"name":"fake","version":"1.0.0"}}`

// fakeServer is a minimal tool server: fixed tools/list, pluggable
// tools/call, and a switch to refuse everything.
type fakeServer struct {
	*httptest.Server
	initCalls atomic.Int32
	listCalls atomic.Int32
	down      atomic.Bool
	lastAuth  atomic.Value

	toolsJSON string
	onCall    func(w http.ResponseWriter, id, params json.RawMessage)
}

func newFakeServer(toolsJSON string, onCall func(w http.ResponseWriter, id, params json.RawMessage)) *fakeServer {
	f := &fakeServer{toolsJSON: toolsJSON, onCall: onCall}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.lastAuth.Store(r.Header.Get("Authorization"))
	if f.down.Load() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch req.Method {
	case "initialize":
		f.initCalls.Add(1)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, initResultJSON)
	case "notifications/initialized":
		w.WriteHeader(http.StatusAccepted)
	case "tools/list":
		f.listCalls.Add(1)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":{"tools":%s}}`, req.ID, f.toolsJSON)
	case "tools/call":
		if f.onCall == nil {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"tools/call not supported"}}`, req.ID)
			return
		}
		f.onCall(w, req.ID, req.Params)
	}
}

const foodToolsJSON = `[
	{"name":"search_restaurants","description":"Search for restaurants","inputSchema":{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}},
	{"name":"add_item","description":"Add an item to the cart","inputSchema":{"type":"object","properties":{"itemId":{"type":"string"},"quantity":{"type":"integer"}},"required":["itemId"]}},
	{"name":"checkout","description":"Place the order"}
]`

const bookingToolsJSON = `[
	{"name":"search_venues","description":"Search bookable venues","inputSchema":{"type":"object","properties":{"area":{"type":"string"}}}},
	{"name":"book_table","description":"Book a table","inputSchema":{"type":"object","properties":{"venueId":{"type":"string"},"partySize":{"type":"integer"}},"required":["venueId","partySize"]}}
]`

func newTestAggregator(t *testing.T, servers ...*fakeServer) (*toolset.Aggregator, []mcp.Endpoint) {
	t.Helper()
	prefixes := []string{"food_", "booking_", "grocery_"}
	keys := []string{"food", "booking", "grocery"}
	endpoints := make([]mcp.Endpoint, len(servers))
	for i, srv := range servers {
		endpoints[i] = mcp.Endpoint{
			Key:        keys[i],
			BaseURL:    srv.URL,
			ToolPrefix: prefixes[i],
		}
	}
	agg, err := toolset.NewAggregator(mcp.NewClient(), endpoints)
	require.NoError(t, err)
	return agg, endpoints
}

func TestCatalogNamespacing(t *testing.T) {
	food := newFakeServer(foodToolsJSON, nil)
	defer food.Close()
	booking := newFakeServer(bookingToolsJSON, nil)
	defer booking.Close()

	agg, _ := newTestAggregator(t, food, booking)
	catalog, err := agg.ListAllTools(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, catalog, 5)

	names := make([]string, 0, len(catalog))
	for _, tool := range catalog {
		names = append(names, tool.Name)

		// namespaced name must round-trip back to the owning endpoint
		assert.Equal(t, tool.Endpoint.ToolPrefix+tool.RemoteName, tool.Name)
		ep, remote, err := agg.Resolve(tool.Name)
		require.NoError(t, err)
		assert.Equal(t, tool.Endpoint.Key, ep.Key)
		assert.Equal(t, tool.RemoteName, remote)

		require.NotNil(t, tool.Parameters, "schema must be normalized even when absent")
		assert.Equal(t, "object", tool.Parameters.Type)
	}
	assert.Contains(t, names, "food_search_restaurants")
	assert.Contains(t, names, "food_checkout")
	assert.Contains(t, names, "booking_book_table")
}

func TestCatalogPartialSuccess(t *testing.T) {
	food := newFakeServer(foodToolsJSON, nil)
	defer food.Close()
	booking := newFakeServer(bookingToolsJSON, nil)
	defer booking.Close()
	grocery := newFakeServer(`[]`, nil)
	grocery.down.Store(true)
	defer grocery.Close()

	agg, _ := newTestAggregator(t, food, booking, grocery)
	catalog, err := agg.ListAllTools(context.Background(), "")
	require.NoError(t, err, "one failed endpoint must not fail the catalog")
	assert.Len(t, catalog, 5)
}

func TestCatalogAllEndpointsFail(t *testing.T) {
	food := newFakeServer(foodToolsJSON, nil)
	food.down.Store(true)
	defer food.Close()
	booking := newFakeServer(bookingToolsJSON, nil)
	booking.down.Store(true)
	defer booking.Close()

	agg, _ := newTestAggregator(t, food, booking)
	_, err := agg.ListAllTools(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, toolset.ErrAllEndpointsUnreachable)
	// every endpoint's reason is present in the aggregate
	assert.Contains(t, err.Error(), "food:")
	assert.Contains(t, err.Error(), "booking:")
}

func TestCatalogCaching(t *testing.T) {
	food := newFakeServer(foodToolsJSON, nil)
	defer food.Close()

	agg, _ := newTestAggregator(t, food)
	ctx := context.Background()

	_, err := agg.ListAllTools(ctx, "token-a")
	require.NoError(t, err)
	require.EqualValues(t, 1, food.listCalls.Load())

	// same credential is served from cache
	_, err = agg.ListAllTools(ctx, "token-a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, food.listCalls.Load())

	// a different credential fetches its own catalog
	_, err = agg.ListAllTools(ctx, "token-b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, food.listCalls.Load())

	agg.InvalidateCatalog()
	_, err = agg.ListAllTools(ctx, "token-a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, food.listCalls.Load())
}

func TestCatalogEmptyListing(t *testing.T) {
	empty := newFakeServer(`[]`, nil)
	defer empty.Close()

	agg, _ := newTestAggregator(t, empty)
	catalog, err := agg.ListAllTools(context.Background(), "")
	require.NoError(t, err, "a responsive endpoint with no tools is not a failure")
	assert.Empty(t, catalog)
}

func TestLLMTools(t *testing.T) {
	food := newFakeServer(foodToolsJSON, nil)
	defer food.Close()

	agg, _ := newTestAggregator(t, food)
	catalog, err := agg.ListAllTools(context.Background(), "")
	require.NoError(t, err)

	defs := toolset.LLMTools(catalog)
	require.Len(t, defs, 3)
	for i, def := range defs {
		assert.Equal(t, "function", def.Type)
		require.NotNil(t, def.Function)
		assert.Equal(t, catalog[i].Name, def.Function.Name)
		assert.Equal(t, catalog[i].Description, def.Function.Description)
		assert.NotNil(t, def.Function.Parameters)
	}
}

func TestNewAggregatorValidatesEndpoints(t *testing.T) {
	_, err := toolset.NewAggregator(mcp.NewClient(), []mcp.Endpoint{
		{Key: "a", BaseURL: "https://a.example.com/mcp", ToolPrefix: "svc_"},
		{Key: "b", BaseURL: "https://b.example.com/mcp", ToolPrefix: "svc_extra_"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous tool prefixes")
}
