package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/forgeagent/forge/agent"
)

func objectSchema(required []string, properties map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		req := make([]interface{}, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

// ReadFileTool returns the read_file tool definition.
func ReadFileTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file and return its content with line numbers. Use offset and limit to read a slice of a large file.",
		InputSchema: objectSchema([]string{"path"}, map[string]interface{}{
			"path":   stringProp("Path to the file, absolute or relative to the working directory"),
			"offset": intProp("1-based line number to start reading from"),
			"limit":  intProp("Maximum number of lines to return"),
		}),
		Risk:      agent.RiskLow,
		Category:  agent.CategoryFilesystem,
		ReadOnly:  true,
		Cacheable: true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Path   string `json:"path"`
				Offset int    `json:"offset"`
				Limit  int    `json:"limit"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			content, err := env.ReadFile(input.Path, input.Offset, input.Limit)
			if err != nil {
				return "", err
			}
			return content, nil
		},
	}
}

// WriteFileTool returns the write_file tool definition.
func WriteFileTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file, creating it and any parent directories if needed. Overwrites existing content.",
		InputSchema: objectSchema([]string{"path", "content"}, map[string]interface{}{
			"path":    stringProp("Path to the file to write"),
			"content": stringProp("Full content to write"),
		}),
		Risk:     agent.RiskMedium,
		Category: agent.CategoryFilesystem,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			if err := env.WriteFile(input.Path, input.Content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path), nil
		},
	}
}

// EditFileTool returns the edit_file tool definition. Edits work by exact
// string replacement.
func EditFileTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "edit_file",
		Description: "Edit a file by replacing every occurrence of old_str with new_str. old_str must appear in the file.",
		InputSchema: objectSchema([]string{"path", "old_str", "new_str"}, map[string]interface{}{
			"path":    stringProp("Path to the file to edit"),
			"old_str": stringProp("Exact string to find and replace"),
			"new_str": stringProp("Replacement string"),
		}),
		Risk:     agent.RiskMedium,
		Category: agent.CategoryFilesystem,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Path   string `json:"path"`
				OldStr string `json:"old_str"`
				NewStr string `json:"new_str"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			if !env.FileExists(input.Path) {
				return "", fmt.Errorf("edit %s: %w", input.Path, fs.ErrNotExist)
			}
			content, err := env.ReadFileRaw(input.Path)
			if err != nil {
				return "", err
			}
			if !strings.Contains(content, input.OldStr) {
				return "", fmt.Errorf("%w: string not found in file: %s", agent.ErrInvalidArgument, input.OldStr)
			}
			count := strings.Count(content, input.OldStr)
			if err := env.WriteFile(input.Path, strings.ReplaceAll(content, input.OldStr, input.NewStr)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Replaced %d occurrence(s) in %s", count, input.Path), nil
		},
	}
}

// ListFilesTool returns the list_files tool definition.
func ListFilesTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "list_files",
		Description: "List directory entries. Set recursive to descend into subdirectories.",
		InputSchema: objectSchema(nil, map[string]interface{}{
			"path":      stringProp("Directory to list, defaults to the working directory"),
			"recursive": boolProp("Recurse into subdirectories"),
		}),
		Risk:      agent.RiskLow,
		Category:  agent.CategoryFilesystem,
		ReadOnly:  true,
		Cacheable: true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Path      string `json:"path"`
				Recursive bool   `json:"recursive"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			if input.Path == "" {
				input.Path = "."
			}
			depth := 1
			if input.Recursive {
				depth = 16
			}
			entries, err := env.ListDirectory(input.Path, depth)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "(empty directory)", nil
			}
			var sb strings.Builder
			for _, entry := range entries {
				if entry.IsDir {
					fmt.Fprintf(&sb, "%s/\n", entry.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", entry.Name, entry.Size)
				}
			}
			return sb.String(), nil
		},
	}
}
