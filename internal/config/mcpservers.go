package config

import "fmt"

// ValidateMCPServers checks that each configured server is launchable
// (command set) or reachable (URL set), but not both or neither.
func ValidateMCPServers(cfg *Config) error {
	for name, server := range cfg.MCPServers {
		hasCommand := server.Command != ""
		hasURL := server.URL != ""
		switch {
		case hasCommand == hasURL:
			return fmt.Errorf("mcp server %q must set exactly one of command or url", name)
		}
	}
	return nil
}

// ServerNames returns the configured MCP server names in no particular
// order, for callers that need to fan out connection attempts.
func ServerNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.MCPServers))
	for name := range cfg.MCPServers {
		names = append(names, name)
	}
	return names
}
