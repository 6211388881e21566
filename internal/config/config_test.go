package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
agents:
  research:
    agent_name: research
    provider: perplexity
    model: sonar-pro
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	binding := cfg.Agents["research"]
	assert.Equal(t, 30, binding.TimeoutSecs)
	assert.Equal(t, 4096, binding.MaxTokens)
	assert.Equal(t, 50, cfg.HardIterationCap)
	assert.Equal(t, 3, cfg.MaxReviewIterations)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeTempConfig(t, `
agents:
  research:
    agent_name: research
    provider: bogus
    model: x
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadExpandsEnvInMCPServers(t *testing.T) {
	t.Setenv("TEST_TOKEN", "secret-value")
	path := writeTempConfig(t, `
agents:
  research:
    agent_name: research
    provider: openai
    model: gpt-4.1
mcp_servers:
  fs:
    command: mcp-fs
    env:
      TOKEN: "${TEST_TOKEN}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", cfg.MCPServers["fs"].Env["TOKEN"])
}

func TestValidateBindingsRequiresAllAgents(t *testing.T) {
	cfg := &Config{
		Agents: map[string]AgentBinding{
			"research": {AgentName: "research", Provider: ProviderPerplexity, Model: "sonar-pro"},
		},
	}
	err := ValidateBindings(cfg)
	assert.Error(t, err)
}

func TestValidateMCPServersRejectsAmbiguous(t *testing.T) {
	cfg := &Config{
		MCPServers: map[string]MCPServerConfig{
			"both": {Command: "cmd", URL: "http://x"},
		},
	}
	assert.Error(t, ValidateMCPServers(cfg))

	cfg = &Config{
		MCPServers: map[string]MCPServerConfig{
			"neither": {},
		},
	}
	assert.Error(t, ValidateMCPServers(cfg))
}

func TestAPIKeyMissing(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	_, err := APIKey(ProviderOpenAI)
	assert.Error(t, err)
}

func TestAPIKeyPresent(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	key, err := APIKey(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
}
