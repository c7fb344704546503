package llmfactory

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
)

// Provider API types accepted in ProviderConfig.APIType.
const (
	APITypeOpenAI    = "OPENAI"
	APITypeAnthropic = "ANTHROPIC"
)

// Config lists the configured LLM providers and the per-agent model
// preferences.
type Config struct {
	// Providers holds one entry per provider account.
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
	// DefaultProvider names the provider serving requests that no model
	// preference resolves. Empty or unknown names fall back to the first
	// configured provider.
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// AgentModels maps an agent name to its preferred models, most
	// preferred first. The "default" key applies to agents without an
	// entry of their own.
	AgentModels map[string][]string `json:"agent_models" yaml:"agent_models"`
}

// provider returns the named provider. An empty or unknown name resolves
// to the first configured provider, nil when none are configured.
func (c *Config) provider(name string) *ProviderConfig {
	if name != "" {
		for _, p := range c.Providers {
			if p.Name == name {
				return p
			}
		}
	}
	if len(c.Providers) > 0 {
		return c.Providers[0]
	}
	return nil
}

// ProviderConfig describes a single LLM provider account.
type ProviderConfig struct {
	// Name identifies the provider in logs and in Config.DefaultProvider.
	Name string `json:"name" yaml:"name"`
	// APIType selects the client implementation, APITypeOpenAI or
	// APITypeAnthropic.
	APIType string `json:"api_type" yaml:"api_type"`
	// Token is the API key. References such as ${OPENAI_API_KEY} are
	// expanded from the environment on load.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// BaseURL overrides the provider endpoint, for proxies and gateways.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// OrgID selects the OpenAI organization whose quota is billed.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	// DefaultModel is used when no preferred model is available.
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	// AvailableModels lists the models this provider serves.
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
}

// FindModel returns the first preferred model present in AvailableModels,
// falling back to DefaultModel when none match.
func (c *ProviderConfig) FindModel(preferred ...string) string {
	for _, name := range preferred {
		if slices.Contains(c.AvailableModels, name) {
			return name
		}
	}
	return c.DefaultModel
}

// LoadConfig reads the factory configuration from a YAML or JSON file,
// expanding ${ENV} references. An empty location yields an empty config.
func LoadConfig(location string) (*Config, error) {
	cfg := new(Config)
	if location == "" {
		return cfg, nil
	}
	if err := configloader.UnmarshalAndExpand(location, cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to load LLM config %q", location)
	}
	return cfg, nil
}
