package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgeagent/forge/agent"
)

const gitTimeoutMs = 30_000

// runGit executes a git subcommand through the environment and returns
// stdout, surfacing stderr as the error message on nonzero exit.
func runGit(ctx context.Context, env agent.ExecutionEnvironment, args ...string) (string, error) {
	command := "git " + strings.Join(args, " ")
	result, err := env.ExecCommand(ctx, command, gitTimeoutMs, "", nil)
	if err != nil {
		return "", err
	}
	if result.TimedOut {
		return "", fmt.Errorf("git command timed out: %s", command)
	}
	if result.ExitCode != 0 {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(result.Stdout)
		}
		return "", fmt.Errorf("git exited with code %d: %s", result.ExitCode, msg)
	}
	return result.Stdout, nil
}

// GitStatusTool returns the git_status tool definition.
func GitStatusTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "git_status",
		Description: "Show the working tree status of the repository.",
		InputSchema: objectSchema(nil, map[string]interface{}{}),
		Risk:        agent.RiskLow,
		Category:    agent.CategoryGit,
		ReadOnly:    true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			out, err := runGit(ctx, env, "status", "--short", "--branch")
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "Working tree clean.", nil
			}
			return out, nil
		},
	}
}

// GitDiffTool returns the git_diff tool definition.
func GitDiffTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "git_diff",
		Description: "Show changes in the working tree. Set staged to show the index instead, or pass a path to narrow the diff.",
		InputSchema: objectSchema(nil, map[string]interface{}{
			"staged": boolProp("Diff the index instead of the working tree"),
			"path":   stringProp("Limit the diff to a file or directory"),
		}),
		Risk:     agent.RiskLow,
		Category: agent.CategoryGit,
		ReadOnly: true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Staged bool   `json:"staged"`
				Path   string `json:"path"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			gitArgs := []string{"diff"}
			if input.Staged {
				gitArgs = append(gitArgs, "--staged")
			}
			if input.Path != "" {
				gitArgs = append(gitArgs, "--", input.Path)
			}
			out, err := runGit(ctx, env, gitArgs...)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "No changes.", nil
			}
			return out, nil
		},
	}
}

// GitLogTool returns the git_log tool definition.
func GitLogTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "git_log",
		Description: "Show recent commits, one line each.",
		InputSchema: objectSchema(nil, map[string]interface{}{
			"limit": intProp("Number of commits to show, default 20"),
		}),
		Risk:     agent.RiskLow,
		Category: agent.CategoryGit,
		ReadOnly: true,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Limit int `json:"limit"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			if input.Limit <= 0 {
				input.Limit = 20
			}
			return runGit(ctx, env, "log", "--oneline", fmt.Sprintf("-%d", input.Limit))
		},
	}
}

// GitCommitTool returns the git_commit tool definition. Stages everything
// and commits with the given message.
func GitCommitTool() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "git_commit",
		Description: "Stage all changes and create a commit with the given message.",
		InputSchema: objectSchema([]string{"message"}, map[string]interface{}{
			"message": stringProp("Commit message"),
		}),
		Risk:     agent.RiskHigh,
		Category: agent.CategoryGit,
		Func: func(ctx context.Context, args json.RawMessage, env agent.ExecutionEnvironment) (string, error) {
			var input struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", agent.ErrInvalidArgument, err)
			}
			if strings.TrimSpace(input.Message) == "" {
				return "", fmt.Errorf("%w: commit message is empty", agent.ErrInvalidArgument)
			}
			if _, err := runGit(ctx, env, "add", "-A"); err != nil {
				return "", err
			}
			result, err := env.ExecCommand(ctx, "git commit -m "+shellQuote(input.Message), gitTimeoutMs, "", nil)
			if err != nil {
				return "", err
			}
			if result.ExitCode != 0 {
				msg := strings.TrimSpace(result.Stderr)
				if msg == "" {
					msg = strings.TrimSpace(result.Stdout)
				}
				return "", fmt.Errorf("git exited with code %d: %s", result.ExitCode, msg)
			}
			return strings.TrimSpace(result.Stdout), nil
		},
	}
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
