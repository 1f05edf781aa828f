package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forgeagent/forge/agent"
)

// GrepTool returns the grep tool definition, backed by ripgrep when
// available.
func GrepTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "grep",
		Description: "Search file contents for a regex pattern. Returns matching lines with file and line number.",
		InputSchema: objectSchema([]string{"pattern"}, map[string]interface{}{
			"pattern":     stringProp("Regex pattern to search for"),
			"path":        stringProp("File or directory to search, defaults to the working directory"),
			"glob":        stringProp("Glob filter for files to search, e.g. *.go"),
			"ignore_case": boolProp("Case-insensitive matching"),
			"max_results": intProp("Maximum matches per file"),
		}),
		Risk:      agent.RiskLow,
		Category:  agent.CategorySearch,
		ReadOnly:  true,
		Cacheable: true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Pattern    string `json:"pattern"`
				Path       string `json:"path"`
				Glob       string `json:"glob"`
				IgnoreCase bool   `json:"ignore_case"`
				MaxResults int    `json:"max_results"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			output, err := env.Grep(ctx, input.Pattern, input.Path, agent.GrepOptions{
				GlobFilter:      input.Glob,
				CaseInsensitive: input.IgnoreCase,
				MaxResults:      input.MaxResults,
			})
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(output) == "" {
				return "No matches found.", nil
			}
			return output, nil
		},
	}
}

// GlobTool returns the glob tool definition.
func GlobTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "glob",
		Description: "Find files matching a glob pattern, e.g. *.go or cmd/*/main.go.",
		InputSchema: objectSchema([]string{"pattern"}, map[string]interface{}{
			"pattern": stringProp("Glob pattern to match file names against"),
			"path":    stringProp("Directory to match under, defaults to the working directory"),
		}),
		Risk:      agent.RiskLow,
		Category:  agent.CategorySearch,
		ReadOnly:  true,
		Cacheable: true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Pattern string `json:"pattern"`
				Path    string `json:"path"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			matches, err := env.Glob(input.Pattern, input.Path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}

// FindFilesTool returns the find_files tool definition. Unlike glob, it
// matches a name substring at any depth.
func FindFilesTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "find_files",
		Description: "Find files whose name contains a substring, searching recursively.",
		InputSchema: objectSchema([]string{"name"}, map[string]interface{}{
			"name": stringProp("Substring to match against file names"),
			"path": stringProp("Directory to search under, defaults to the working directory"),
		}),
		Risk:      agent.RiskLow,
		Category:  agent.CategorySearch,
		ReadOnly:  true,
		Cacheable: true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Name string `json:"name"`
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			if input.Path == "" {
				input.Path = "."
			}
			entries, err := env.ListDirectory(input.Path, 16)
			if err != nil {
				return "", err
			}
			var matches []string
			for _, entry := range entries {
				if entry.IsDir {
					continue
				}
				if strings.Contains(filepath.Base(entry.Name), input.Name) {
					matches = append(matches, entry.Name)
				}
			}
			if len(matches) == 0 {
				return "No files matched.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}
