package main

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/redis/go-redis/v9"

	"github.com/orderpilot-ai/orderpilot/agent"
	"github.com/orderpilot-ai/orderpilot/mcp"
	"github.com/orderpilot-ai/orderpilot/pkg/llmfactory"
	"github.com/orderpilot-ai/orderpilot/session"
	"github.com/orderpilot-ai/orderpilot/toolset"
)

// Config is the top-level configuration of the orderpilot binary.
// Values support environment expansion, so secrets can be referenced
// as ${VAR} in the file.
type Config struct {
	// LLM configures providers and per-agent model preferences.
	LLM *llmfactory.Config `json:"llm" yaml:"llm"`
	// Endpoints lists the remote tool servers whose catalogs are merged.
	Endpoints []mcp.Endpoint `json:"endpoints" yaml:"endpoints"`
	// Redis enables the shared conversation context store when set.
	// Without it each process keeps context in memory.
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
	// Agent tunes the conversation loop.
	Agent AgentConfig `json:"agent,omitempty" yaml:"agent,omitempty"`
}

// RedisConfig describes the optional shared context store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	// Prefix namespaces keys when the instance is shared.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// TTL is a duration string such as "168h". Empty uses the store default.
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// SessionTTL parses the configured TTL, returning 0 when unset.
func (c *RedisConfig) SessionTTL() (time.Duration, error) {
	if c == nil || c.TTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, errors.WithMessage(err, "invalid redis TTL")
	}
	return ttl, nil
}

// AgentConfig tunes the conversation loop. Zero values keep the
// agent defaults.
type AgentConfig struct {
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxRounds   int     `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty"`
}

// LoadConfig reads and validates the configuration file.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.LLM == nil || len(cfg.LLM.Providers) == 0 {
		return nil, errors.New("config: at least one LLM provider is required")
	}
	if err := mcp.ValidateEndpoints(cfg.Endpoints); err != nil {
		return nil, errors.WithMessage(err, "config")
	}
	if _, err := cfg.Redis.SessionTTL(); err != nil {
		return nil, errors.WithMessage(err, "config")
	}
	return cfg, nil
}

// runtime bundles the wired components behind one chat command
// invocation.
type runtime struct {
	agent *agent.Agent
	store session.Store
	tools *toolset.Aggregator
	rdb   *redis.Client
}

func newRuntime(cfg *Config, verbose bool) (*runtime, error) {
	model, err := llmfactory.New(cfg.LLM).AgentModel("orderpilot")
	if err != nil {
		return nil, errors.WithMessage(err, "create model")
	}

	tools, err := toolset.NewAggregator(mcp.NewClient(), cfg.Endpoints)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	store := session.NewMemoryStore()
	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		ttl, err := cfg.Redis.SessionTTL()
		if err != nil {
			return nil, err
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = session.NewRedisStore(rdb, cfg.Redis.Prefix, ttl)
	}

	var opts []agent.Option
	if cfg.Agent.Model != "" {
		opts = append(opts, agent.WithModel(cfg.Agent.Model))
	}
	if cfg.Agent.MaxTokens > 0 {
		opts = append(opts, agent.WithMaxTokens(cfg.Agent.MaxTokens))
	}
	if cfg.Agent.Temperature > 0 {
		opts = append(opts, agent.WithTemperature(cfg.Agent.Temperature))
	}
	if cfg.Agent.MaxRounds > 0 {
		opts = append(opts, agent.WithMaxRounds(cfg.Agent.MaxRounds))
	}
	if verbose {
		opts = append(opts, agent.WithCallback(agent.NewPrinterCallback(os.Stderr)))
	}

	return &runtime{
		agent: agent.New(model, tools, store, opts...),
		store: store,
		tools: tools,
		rdb:   rdb,
	}, nil
}

func (r *runtime) Close() {
	if r.rdb != nil {
		_ = r.rdb.Close()
	}
}
