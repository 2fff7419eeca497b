package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Gateways  map[string]GatewayConfig  `yaml:"gateways"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Models    ModelsConfig              `yaml:"models"`
	Engine    EngineConfig              `yaml:"engine"`
	Memory    MemoryConfig              `yaml:"memory"`
	Prompts   PromptsConfig             `yaml:"prompts"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// ModelAlias binds a role name (planner, executor, summarizer) to a
// concrete backend model plus its default sampling parameters.
type ModelAlias struct {
	Model            string  `yaml:"model"`
	Family           string  `yaml:"family"` // legacy | reasoning
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p,omitempty"`
	FrequencyPenalty float64 `yaml:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `yaml:"presence_penalty,omitempty"`
	Effort           string  `yaml:"effort,omitempty"`
	MaxTokens        int     `yaml:"max_tokens,omitempty"`
}

type ModelsConfig struct {
	Aliases map[string]ModelAlias `yaml:"aliases"`
	Retry   RetryConfig           `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	// RetryOn is the allow-list of transient error kinds worth retrying.
	// Empty means the built-in default set.
	RetryOn []string `yaml:"retry_on,omitempty"`
}

// Duration accepts Go duration strings ("500ms", "30s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type EngineConfig struct {
	MaxSteps          int  `yaml:"max_steps"`
	CompressThreshold int  `yaml:"compress_threshold"`
	CompressKeep      int  `yaml:"compress_keep"`
	HistoryLimit      int  `yaml:"history_limit"`
	Clarify           bool `yaml:"clarify"`
}

type MemoryConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{Name: "kestrel", Workspace: "./workspace"},
		Models: ModelsConfig{
			Retry: RetryConfig{
				MaxAttempts:  4,
				InitialDelay: Duration(1 * time.Second),
				MaxDelay:     Duration(30 * time.Second),
			},
		},
		Engine: EngineConfig{
			MaxSteps:          15,
			CompressThreshold: 40,
			CompressKeep:      10,
			HistoryLimit:      20,
			Clarify:           true,
		},
		Memory:  MemoryConfig{Type: "sqlite", Path: "kestrel.db"},
		Prompts: PromptsConfig{Dir: "./prompts"},
	}
}

func (c *Config) validate() error {
	for name, alias := range c.Models.Aliases {
		if alias.Model == "" {
			return fmt.Errorf("model alias %q has no backend model", name)
		}
		switch alias.Family {
		case "legacy", "reasoning":
		case "":
			return fmt.Errorf("model alias %q has no family", name)
		default:
			return fmt.Errorf("model alias %q has unknown family %q", name, alias.Family)
		}
	}
	if c.Models.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("engine max_steps must be at least 1")
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named gateway config if enabled
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled {
		return gw, true
	}
	return GatewayConfig{}, false
}
