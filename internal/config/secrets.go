package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// secretEnvVars maps each Provider to the environment variable that must
// hold its API key. Secrets are never read from YAML config.
var secretEnvVars = map[Provider]string{
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderAnthropic:  "ANTHROPIC_API_KEY",
	ProviderPerplexity: "PERPLEXITY_API_KEY",
}

// LoadDotEnv loads key=value pairs from a .env file into the process
// environment, if the file exists. Missing files are not an error: secrets
// may already be present in the environment (e.g. container orchestration).
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading dotenv %s: %w", path, err)
	}
	return nil
}

// APIKey resolves the API key for provider from the environment.
func APIKey(provider Provider) (string, error) {
	envVar, ok := secretEnvVars[provider]
	if !ok {
		return "", fmt.Errorf("no secret env var mapping for provider %q", provider)
	}
	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("missing required secret %s for provider %q", envVar, provider)
	}
	return key, nil
}

// ValidateSecrets checks that every provider referenced by cfg's agent
// bindings has a resolvable API key, without returning the key itself.
func ValidateSecrets(cfg *Config) error {
	seen := map[Provider]bool{}
	for _, binding := range cfg.Agents {
		if seen[binding.Provider] {
			continue
		}
		seen[binding.Provider] = true
		if _, err := APIKey(binding.Provider); err != nil {
			return err
		}
	}
	return nil
}
