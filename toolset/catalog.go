// Package toolset merges the tool listings of the configured endpoints
// into one namespaced catalog and routes invocations back to the owning
// endpoint.
package toolset

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"

	"github.com/orderpilot-ai/orderpilot/mcp"
	"github.com/orderpilot-ai/orderpilot/pkg/llms"
	"github.com/orderpilot-ai/orderpilot/pkg/schema"
)

var logger = xlog.NewPackageLogger("github.com/orderpilot-ai/orderpilot", "toolset")

var (
	// ErrUnknownTool is returned when a namespaced name matches no
	// configured endpoint prefix.
	ErrUnknownTool = errors.New("toolset: unknown tool")
	// ErrToolInvocation is returned when an endpoint reports a tool-level
	// failure, either as a JSON-RPC error or an isError result.
	ErrToolInvocation = errors.New("toolset: tool invocation failed")
	// ErrAllEndpointsUnreachable is returned when no endpoint contributed
	// a listing to the catalog.
	ErrAllEndpointsUnreachable = errors.New("toolset: all endpoints unreachable")
)

// Tool is one entry of the merged catalog.
type Tool struct {
	// Name is the namespaced name presented to the model.
	Name        string
	Description string
	// Parameters is the tool's input schema, normalized so that every
	// entry has a type and a properties object.
	Parameters *jsonschema.Schema
	// Endpoint owns the tool; RemoteName is the name used on the wire.
	Endpoint   mcp.Endpoint
	RemoteName string
}

// Aggregator builds and caches the merged catalog and invokes tools on
// their owning endpoints. Catalogs are cached per credential, since
// endpoints may expose different tool sets to different bearers.
type Aggregator struct {
	client    *mcp.Client
	endpoints []mcp.Endpoint

	lock  sync.RWMutex
	cache map[uint64][]Tool
}

// NewAggregator validates the endpoint set and returns an Aggregator
// with an empty catalog cache.
func NewAggregator(client *mcp.Client, endpoints []mcp.Endpoint) (*Aggregator, error) {
	if err := mcp.ValidateEndpoints(endpoints); err != nil {
		return nil, err
	}
	return &Aggregator{
		client:    client,
		endpoints: endpoints,
		cache:     make(map[uint64][]Tool),
	}, nil
}

// Endpoints returns the configured endpoint set.
func (a *Aggregator) Endpoints() []mcp.Endpoint {
	return a.endpoints
}

// ListAllTools returns the merged tool list for the credential, fetching
// endpoint listings on first use. The catalog is usable when at least
// one endpoint responds; failed endpoints are logged and skipped. Only
// a fully failed fetch is an error.
func (a *Aggregator) ListAllTools(ctx context.Context, credential string) ([]Tool, error) {
	key := xxhash.Sum64String(credential)

	a.lock.RLock()
	cached := a.cache[key]
	a.lock.RUnlock()
	if cached != nil {
		return cached, nil
	}

	built, err := a.fetchCatalog(ctx, credential)
	if err != nil {
		return nil, err
	}

	a.lock.Lock()
	a.cache[key] = built
	a.lock.Unlock()
	return built, nil
}

// InvalidateCatalog drops all cached catalogs; the next ListAllTools
// call re-fetches the endpoint listings.
func (a *Aggregator) InvalidateCatalog() {
	a.lock.Lock()
	a.cache = make(map[uint64][]Tool)
	a.lock.Unlock()
}

func (a *Aggregator) fetchCatalog(ctx context.Context, credential string) ([]Tool, error) {
	type listing struct {
		tools []mcp.ToolDescriptor
		err   error
	}
	results := make([]listing, len(a.endpoints))

	var wg sync.WaitGroup
	for i, ep := range a.endpoints {
		wg.Add(1)
		go func(i int, ep mcp.Endpoint) {
			defer wg.Done()
			conn, err := a.client.EnsureConnection(ctx, ep, credential)
			if err != nil {
				results[i].err = err
				return
			}
			results[i].tools, results[i].err = a.client.ListTools(ctx, conn)
		}(i, ep)
	}
	wg.Wait()

	var merged []Tool
	var reasons []string
	succeeded := 0
	for i, ep := range a.endpoints {
		res := results[i]
		if res.err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %s", ep.Key, res.err.Error()))
			logger.ContextKV(ctx, xlog.WARNING,
				"endpoint", ep.Key,
				"status", "catalog_fetch_failed",
				"err", res.err.Error())
			continue
		}
		succeeded++
		for _, td := range res.tools {
			params, err := schema.FromJSON(td.InputSchema)
			if err != nil {
				logger.ContextKV(ctx, xlog.WARNING,
					"endpoint", ep.Key,
					"tool", td.Name,
					"status", "invalid_input_schema",
					"err", err.Error())
				continue
			}
			merged = append(merged, Tool{
				Name:        ep.ToolPrefix + td.Name,
				Description: td.Description,
				Parameters:  params,
				Endpoint:    ep,
				RemoteName:  td.Name,
			})
		}
	}

	if succeeded == 0 {
		return nil, errors.WithMessagef(ErrAllEndpointsUnreachable,
			"%d endpoints failed: %s", len(reasons), strings.Join(reasons, "; "))
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "catalog_built",
		"tools", len(merged),
		"endpoints", len(a.endpoints),
		"failed", len(reasons))
	return merged, nil
}

// LLMTools converts catalog entries into model tool definitions.
func LLMTools(catalog []Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
