package llmfactory

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/orderpilot-ai/orderpilot/pkg/llms"
	"github.com/orderpilot-ai/orderpilot/pkg/llms/anthropic"
	"github.com/orderpilot-ai/orderpilot/pkg/llms/openai"
)

var logger = xlog.NewPackageLogger("github.com/orderpilot-ai/orderpilot", "llmfactory")

// NewLLM builds a model client from a provider config. It is a variable so
// tests can substitute a fake constructor.
var NewLLM = CreateLLM

// Factory hands out chat model clients, one per provider, constructed on
// first use and cached after that.
type Factory interface {
	// DefaultModel returns the default provider's default model.
	DefaultModel() (llms.Model, error)
	// ModelByType returns a model from the provider with the given API
	// type, such as OPENAI or ANTHROPIC.
	ModelByType(providerType string) (llms.Model, error)
	// ModelByName returns the first of the preferred models served by a
	// configured provider, or the default model when none match.
	ModelByName(preferredModels ...string) (llms.Model, error)
	// AgentModel returns the model configured for the named agent.
	AgentModel(agentName string, preferredModels ...string) (llms.Model, error)
}

// Load builds a Factory from a config file.
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg             *Config
	defaultProvider *ProviderConfig
	agentModels     map[string][]string

	lock   sync.Mutex
	byType map[string]llms.Model
	byName map[string]llms.Model
}

// New builds a Factory over the given config.
func New(cfg *Config) Factory {
	f := &factory{
		cfg:             cfg,
		defaultProvider: cfg.provider(cfg.DefaultProvider),
		agentModels:     make(map[string][]string, len(cfg.AgentModels)),
		byType:          make(map[string]llms.Model),
		byName:          make(map[string]llms.Model),
	}
	for agent, models := range cfg.AgentModels {
		f.agentModels[agent] = slices.Clone(models)
	}
	return f
}

// CreateLLM constructs a model client for the provider, picking the first
// preferred model the provider serves.
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	switch apiType := strings.ToUpper(cfg.APIType); apiType {
	case APITypeOpenAI, "OPEN_AI":
		return newOpenAI(cfg, preferredModels...)
	case APITypeAnthropic:
		return newAnthropic(cfg, preferredModels...)
	default:
		return nil, errors.Errorf("unsupported provider type: %s", apiType)
	}
}

func newOpenAI(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.FindModel(preferredModels...)),
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OrgID))
	}
	return openai.New(opts...)
}

func newAnthropic(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithModel(cfg.FindModel(preferredModels...)),
	}
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(opts...)
}

func (f *factory) DefaultModel() (llms.Model, error) {
	if f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}
	return NewLLM(f.defaultProvider, f.defaultProvider.DefaultModel)
}

func (f *factory) ModelByType(providerType string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if model, ok := f.byType[providerType]; ok {
		return model, nil
	}
	for _, p := range f.cfg.Providers {
		if !strings.EqualFold(p.APIType, providerType) {
			continue
		}
		model, err := NewLLM(p)
		if err != nil {
			return nil, err
		}
		logger.KV(xlog.DEBUG,
			"status", "created_llm",
			"provider", p.Name,
			"type", p.APIType)
		f.byType[providerType] = model
		return model, nil
	}
	return nil, errors.Errorf("provider not found for type: %s", providerType)
}

func (f *factory) ModelByName(preferredModels ...string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, name := range preferredModels {
		if model, ok := f.byName[name]; ok {
			return model, nil
		}
		for _, p := range f.cfg.Providers {
			if !slices.Contains(p.AvailableModels, name) {
				continue
			}
			model, err := NewLLM(p, preferredModels...)
			if err != nil {
				logger.KV(xlog.ERROR,
					"reason", "create_llm",
					"provider", p.Name,
					"models", preferredModels,
					"err", err.Error())
				continue
			}
			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"provider", p.Name,
				"type", p.APIType)
			f.byName[name] = model
			return model, nil
		}
	}
	return f.DefaultModel()
}

// AgentModel picks the model for a named agent: the agent's own mapping
// wins, then the "default" mapping, then the caller's preferred models.
func (f *factory) AgentModel(agentName string, preferredModels ...string) (llms.Model, error) {
	if models, ok := f.agentModels[agentName]; ok {
		return f.ModelByName(models...)
	}
	if models, ok := f.agentModels["default"]; ok {
		return f.ModelByName(models...)
	}
	return f.ModelByName(preferredModels...)
}
