// Package config loads and validates the engine's startup configuration:
// per-agent LLM bindings and the MCP server registry. Secrets
// are never read from here — see secrets.go.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ki-autoagent/engine/internal/apperr"
)

// Provider enumerates the supported LLM providers.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderPerplexity Provider = "perplexity"
)

// AgentBinding binds an agent name to a specific provider/model and
// generation parameters.
type AgentBinding struct {
	AgentName     string   `yaml:"agent_name" json:"agent_name" validate:"required"`
	Provider      Provider `yaml:"provider" json:"provider" validate:"required,oneof=openai anthropic perplexity"`
	Model         string   `yaml:"model" json:"model" validate:"required"`
	Temperature   float64  `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens     int      `yaml:"max_tokens" json:"max_tokens" validate:"gt=0"`
	TimeoutSecs   int      `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gt=0"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// MCPServerConfig describes how to launch or reach an MCP tool server.
type MCPServerConfig struct {
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
}

// Config is the full startup configuration.
type Config struct {
	Agents         map[string]AgentBinding    `yaml:"agents" json:"agents" validate:"required,dive"`
	MCPServers     map[string]MCPServerConfig `yaml:"mcp_servers" json:"mcp_servers"`
	HardIterationCap int                      `yaml:"hard_iteration_cap,omitempty" json:"hard_iteration_cap,omitempty"`
	MaxReviewIterations int                   `yaml:"max_review_iterations,omitempty" json:"max_review_iterations,omitempty"`
	LogLevel       string                     `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFile        string                     `yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

// SetDefaults fills in zero-valued optional fields.
func (c *Config) SetDefaults() {
	if c.HardIterationCap <= 0 {
		c.HardIterationCap = 50
	}
	if c.MaxReviewIterations <= 0 {
		c.MaxReviewIterations = 3
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for name, binding := range c.Agents {
		if binding.TimeoutSecs <= 0 {
			binding.TimeoutSecs = 30
		}
		if binding.MaxTokens <= 0 {
			binding.MaxTokens = 4096
		}
		c.Agents[name] = binding
	}
}

var validate = validator.New()

// Validate checks required fields and enum constraints. It does not check
// secrets (those are resolved separately and may be absent in tests).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	for name, binding := range c.Agents {
		if binding.AgentName != "" && binding.AgentName != name {
			return fmt.Errorf("agent binding key %q does not match agent_name %q", name, binding.AgentName)
		}
	}
	return nil
}

// Binding looks up the binding for agentName.
func (c *Config) Binding(agentName string) (AgentBinding, error) {
	b, ok := c.Agents[agentName]
	if !ok {
		return AgentBinding{}, apperr.New(apperr.KindUnknownAgent,
			fmt.Sprintf("unknown agent %q: no binding configured", agentName), nil)
	}
	return b, nil
}

// Load reads and parses a YAML config file, applies defaults, expands
// ${VAR} references in MCP server env maps, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.SetDefaults()
	expandEnvRefs(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandEnvRefs resolves "${VAR}" placeholders in MCP server env values
// against the process environment, since real deployments keep credentials
// out of the YAML file itself.
func expandEnvRefs(cfg *Config) {
	for name, server := range cfg.MCPServers {
		for k, v := range server.Env {
			server.Env[k] = os.Expand(v, os.Getenv)
		}
		cfg.MCPServers[name] = server
	}
}
