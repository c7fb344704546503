package mcp

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Endpoint identifies one remote tool server.
type Endpoint struct {
	// Key is the logical name used in config, logs and metrics.
	Key string `json:"key" yaml:"key" validate:"required"`
	// BaseURL is the streamable HTTP URL accepting JSON-RPC POST requests.
	BaseURL string `json:"base_url" yaml:"base_url" validate:"required,url"`
	// ToolPrefix namespaces this endpoint's tools in the merged catalog,
	// e.g. "food_" turns "search_restaurants" into "food_search_restaurants".
	ToolPrefix string `json:"tool_prefix" yaml:"tool_prefix" validate:"required"`
}

// ValidateEndpoints checks that a set of endpoints can serve as catalog
// sources. Keys and prefixes must be unique, and no prefix may be a prefix
// of another, otherwise namespaced tool names cannot be resolved back to a
// single endpoint.
func ValidateEndpoints(endpoints []Endpoint) error {
	if len(endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	validate := validator.New()
	seenKeys := make(map[string]bool, len(endpoints))
	for idx, ep := range endpoints {
		if err := validate.Struct(ep); err != nil {
			return errors.WithMessagef(err, "invalid endpoint at index %d", idx)
		}
		if seenKeys[ep.Key] {
			return errors.Errorf("duplicate endpoint key: %s", ep.Key)
		}
		seenKeys[ep.Key] = true
	}

	for i, a := range endpoints {
		for j, b := range endpoints {
			if i == j {
				continue
			}
			if strings.HasPrefix(b.ToolPrefix, a.ToolPrefix) {
				return errors.Errorf("ambiguous tool prefixes: %q overlaps %q",
					a.ToolPrefix, b.ToolPrefix)
			}
		}
	}
	return nil
}
