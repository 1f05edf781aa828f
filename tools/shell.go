package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgeagent/forge/agent"
)

// DefaultShellTimeoutMs bounds shell commands that do not specify a timeout.
const DefaultShellTimeoutMs = 60_000

// ShellTool returns the shell tool definition. Commands run through the
// system shell with a filtered environment.
func ShellTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "shell",
		Description: "Execute a shell command in the working directory and return combined output with the exit code.",
		InputSchema: objectSchema([]string{"command"}, map[string]interface{}{
			"command":     stringProp("The shell command to execute"),
			"timeout_ms":  intProp("Maximum execution time in milliseconds, default 60000"),
			"working_dir": stringProp("Directory to run in, defaults to the working directory"),
		}),
		Risk:     agent.RiskHigh,
		Category: agent.CategoryShell,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Command    string `json:"command"`
				TimeoutMs  int    `json:"timeout_ms"`
				WorkingDir string `json:"working_dir"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			if input.TimeoutMs <= 0 {
				input.TimeoutMs = DefaultShellTimeoutMs
			}

			result, err := env.ExecCommand(ctx, input.Command, input.TimeoutMs, input.WorkingDir, nil)
			if err != nil {
				return "", err
			}
			if result.TimedOut {
				return "", fmt.Errorf("command timed out after %dms", input.TimeoutMs)
			}

			var sb strings.Builder
			if result.Stdout != "" {
				sb.WriteString(result.Stdout)
			}
			if result.Stderr != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString("STDERR:\n")
				sb.WriteString(result.Stderr)
			}
			fmt.Fprintf(&sb, "\nExit Code: %d", result.ExitCode)
			return strings.TrimSpace(sb.String()), nil
		},
	}
}
