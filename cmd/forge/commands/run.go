package commands

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeagent/forge/agent"
	"github.com/forgeagent/forge/config"
	"github.com/forgeagent/forge/llm"
	"github.com/forgeagent/forge/session"
	"github.com/forgeagent/forge/tools"
)

func newRunCmd() *cobra.Command {
	var (
		autoApprove bool
		resumeID    string
		model       string
	)

	cmd := &cobra.Command{
		Use:   "run \"prompt\"",
		Short: "Run a prompt through the agent loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if model != "" {
				cfg.LLM.Model = model
			}
			if autoApprove {
				cfg.Permissions.AutoApproveAll = true
			}

			storage, closeStorage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer closeStorage()

			sess, err := resolveSession(storage, resumeID)
			if err != nil {
				return err
			}

			a, err := buildAgent(cfg)
			if err != nil {
				return err
			}

			events := a.Run(cmd.Context(), sess, args[0])
			exitErr := streamEvents(cmd, sess, events)

			if err := storage.Save(sess); err != nil {
				slog.Warn("failed to save session", "id", sess.ID, "error", err)
			}
			return exitErr
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve all tool calls without prompting")
	cmd.Flags().StringVar(&resumeID, "resume", "", "resume an existing session by id")
	cmd.Flags().StringVarP(&model, "model", "m", "", "override the configured model")

	return cmd
}

func resolveSession(storage session.Storage, resumeID string) (*session.Session, error) {
	if resumeID == "" {
		wd, _ := os.Getwd()
		return session.New(wd), nil
	}
	sess, err := storage.Load(resumeID)
	if err != nil {
		return nil, fmt.Errorf("resume session %s: %w", resumeID, err)
	}
	return sess, nil
}

// buildAgent wires the transport, registry, permissions, and environment
// from the configuration.
func buildAgent(cfg *config.Config) (*agent.Agent, error) {
	adapter, err := llm.NewGollmAdapter(cfg.LLM.Provider, cfg.LLM.APIKey,
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens))
	if err != nil {
		return nil, err
	}

	policy := llm.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries > 0 {
		policy.MaxRetries = cfg.LLM.MaxRetries
	}
	if cfg.LLM.BaseDelay > 0 {
		policy.BaseDelay = cfg.LLM.BaseDelay
	}
	client := llm.NewClient(
		llm.WithProvider(cfg.LLM.Provider, adapter),
		llm.WithMiddleware(llm.RetryMiddleware(policy)),
	)

	registry := agent.NewRegistry()
	tools.RegisterBuiltins(registry)

	permissions := agent.NewPermissionManager(agent.PermissionPolicy{
		AutoApprove:            cfg.Permissions.AutoApproveAll,
		PromptLowRisk:          !cfg.Permissions.AutoApproveLowRisk,
		SessionOverrideAllowed: cfg.Permissions.SessionOverrideAllowed,
	}, terminalPrompter())

	systemPrompt, err := cfg.ResolveSystemPrompt()
	if err != nil {
		return nil, err
	}

	wd, _ := os.Getwd()
	return agent.New(client, registry, permissions,
		agent.WithEnvironment(tools.NewLocalEnvironment(wd)),
		agent.WithConfig(agent.LoopConfig{
			Model:               cfg.LLM.Model,
			Provider:            cfg.LLM.Provider,
			SystemPrompt:        systemPrompt,
			MaxIterations:       cfg.Loop.MaxIterations,
			MaxTokens:           cfg.Loop.MaxTokens,
			EnableLoopDetection: cfg.Loop.EnableLoopDetection,
			LoopDetectionWindow: cfg.Loop.LoopDetectionWindow,
		}),
	), nil
}

// terminalPrompter asks for tool approval on stdin.
func terminalPrompter() agent.Prompter {
	reader := bufio.NewReader(os.Stdin)
	return agent.PrompterFunc(func(req agent.PermissionRequest) agent.PermissionDecision {
		fmt.Fprintf(os.Stderr, "\nTool %s (risk %s) wants to run with arguments:\n  %s\n", req.ToolName, req.Risk, req.Arguments)
		fmt.Fprint(os.Stderr, "Allow? [y]es / [a]lways / [N]o: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return agent.PermissionDecision{}
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return agent.PermissionDecision{Approved: true}
		case "a", "always":
			return agent.PermissionDecision{Approved: true, AlwaysAllow: true}
		default:
			return agent.PermissionDecision{}
		}
	})
}

// streamEvents prints loop events as they arrive and reports whether the
// run ended cleanly.
func streamEvents(cmd *cobra.Command, sess *session.Session, events <-chan agent.LoopEvent) error {
	var failure error
	for ev := range events {
		switch ev.Kind {
		case agent.EventToolCall:
			fmt.Fprintf(os.Stderr, "-> %s\n", ev.ToolName)
		case agent.EventToolResult:
			status := "ok"
			if ev.IsError {
				status = "error"
			}
			if ev.WasCached {
				status += ", cached"
			}
			fmt.Fprintf(os.Stderr, "<- %s (%s)\n", ev.ToolName, status)
		case agent.EventPermissionDenied:
			fmt.Fprintf(os.Stderr, "<- %s denied\n", ev.ToolName)
		case agent.EventLoopDetected:
			fmt.Fprintln(os.Stderr, "!! repeating tool pattern detected, nudging the model")
		case agent.EventIterationLimit:
			fmt.Fprintf(os.Stderr, "!! iteration limit reached after %d iterations\n", ev.Iterations)
		case agent.EventTokenLimit:
			fmt.Fprintf(os.Stderr, "!! token budget exhausted (%d tokens)\n", ev.TotalTokens)
		case agent.EventLLMError:
			failure = fmt.Errorf("llm error: %s", ev.Content)
		case agent.EventFinished:
			if text := lastAssistantText(sess); text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			fmt.Fprintf(os.Stderr, "\n[%d iterations, %d tokens, session %s]\n",
				ev.Iterations, ev.TotalTokens, ev.SessionID)
		}
	}
	return failure
}

func lastAssistantText(sess *session.Session) string {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		msg := sess.Messages[i]
		if msg.Role == llm.RoleAssistant {
			if text := msg.Text(); strings.TrimSpace(text) != "" {
				return text
			}
		}
	}
	return ""
}
