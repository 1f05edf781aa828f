package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadFile reads a YAML config file, expanding ${VAR} references from the
// environment. .env and .env.local are loaded first without overwriting
// existing variables.
func LoadFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	return cfg, nil
}

// Load finds and loads the config file from standard locations, falling
// back to defaults when none exists.
func Load() (*Config, error) {
	loadEnvFiles()
	path := FindConfigFile()
	if path == "" {
		cfg := Default()
		resolveSecrets(cfg)
		return cfg, nil
	}
	return LoadFile(path)
}

// FindConfigFile searches standard locations for a config file and returns
// the first match, or empty when none exists.
func FindConfigFile() string {
	candidates := []string{
		"forge.yaml",
		"forge.yml",
		".forge.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "forge", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		// godotenv.Load does not overwrite existing env vars.
		_ = godotenv.Load(f)
	}
}

func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		// Leave unset references in place.
		return match
	})
}

// resolveSecrets fills the API key from well-known environment variables
// when the config leaves it empty or as an unresolved reference.
func resolveSecrets(cfg *Config) {
	if cfg.LLM.APIKey != "" && !isEnvReference(cfg.LLM.APIKey) {
		return
	}
	for _, name := range []string{"FORGE_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			cfg.LLM.APIKey = key
			return
		}
	}
}

func isEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}
