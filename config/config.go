// Package config holds runtime settings and the YAML loader. Values come
// from a config file with environment variable expansion, with .env files
// loaded first as a convenience.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the base system prompt prepended to every run.
const DefaultSystemPrompt = `You are a helpful coding assistant.

You help with software engineering tasks including writing code, debugging,
explaining concepts, and performing file operations. You have access to tools
that let you read and modify files, run shell commands, search code, and more.

Be concise and direct in your responses. Follow the coding conventions and
style of the existing codebase when making changes.`

// LLMSettings configures the model transport.
type LLMSettings struct {
	Provider   string  `yaml:"provider"`
	Model      string  `yaml:"model"`
	MaxTokens  int     `yaml:"max_tokens"`
	APIKey     string  `yaml:"api_key"`
	MaxRetries int     `yaml:"max_retries"`
	BaseDelay  float64 `yaml:"base_delay"`
}

// PermissionSettings configures the permission gate.
type PermissionSettings struct {
	AutoApproveLowRisk     bool `yaml:"auto_approve_low_risk"`
	SessionOverrideAllowed bool `yaml:"session_override_allowed"`
	AutoApproveAll         bool `yaml:"auto_approve_all"`
}

// LoopSettings bounds the conversation loop.
type LoopSettings struct {
	MaxIterations       int  `yaml:"max_iterations"`
	MaxTokens           int  `yaml:"max_tokens"`
	EnableLoopDetection bool `yaml:"enable_loop_detection"`
	LoopDetectionWindow int  `yaml:"loop_detection_window"`
}

// SystemPromptSettings customizes the system prompt. File wins over
// Content; mode "append" adds the custom content after the base prompt,
// "replace" uses it alone.
type SystemPromptSettings struct {
	Content string `yaml:"content"`
	File    string `yaml:"file"`
	Append  string `yaml:"append"`
	Mode    string `yaml:"mode"`
}

// StorageSettings selects the session persistence backend.
type StorageSettings struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Path    string `yaml:"path"`
}

// Config is the full application configuration.
type Config struct {
	LLM          LLMSettings          `yaml:"llm"`
	Permissions  PermissionSettings   `yaml:"permissions"`
	Loop         LoopSettings         `yaml:"loop"`
	SystemPrompt SystemPromptSettings `yaml:"system_prompt"`
	Storage      StorageSettings      `yaml:"storage"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LLM: LLMSettings{
			Provider:   "anthropic",
			Model:      "claude-sonnet-4-20250514",
			MaxTokens:  4096,
			MaxRetries: 3,
			BaseDelay:  1.0,
		},
		Permissions: PermissionSettings{
			AutoApproveLowRisk:     true,
			SessionOverrideAllowed: true,
		},
		Loop: LoopSettings{
			MaxIterations:       50,
			EnableLoopDetection: true,
			LoopDetectionWindow: 10,
		},
		SystemPrompt: SystemPromptSettings{
			Mode: "append",
		},
		Storage: StorageSettings{
			Backend: "file",
		},
	}
}

// Parse overlays YAML bytes onto the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if cfg.SystemPrompt.Mode != "" && cfg.SystemPrompt.Mode != "append" && cfg.SystemPrompt.Mode != "replace" {
		return nil, fmt.Errorf("invalid system_prompt.mode %q, want append or replace", cfg.SystemPrompt.Mode)
	}
	return cfg, nil
}

// ResolveSystemPrompt builds the effective system prompt from the settings.
func (c *Config) ResolveSystemPrompt() (string, error) {
	custom := c.SystemPrompt.Content
	if c.SystemPrompt.File != "" {
		path := c.SystemPrompt.File
		if strings.HasPrefix(path, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("expanding prompt file path: %w", err)
			}
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		custom = string(data)
	}

	base := DefaultSystemPrompt
	switch {
	case custom != "" && c.SystemPrompt.Mode == "replace":
		base = custom
	case custom != "":
		base = base + "\n\n" + custom
	}
	if c.SystemPrompt.Append != "" {
		base = base + "\n\n" + c.SystemPrompt.Append
	}
	return base, nil
}
