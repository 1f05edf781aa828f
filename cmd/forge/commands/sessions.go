package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forgeagent/forge/llm"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect saved sessions",
	}
	cmd.AddCommand(newSessionsListCmd(), newSessionsShowCmd(), newSessionsDeleteCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			storage, closeStorage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer closeStorage()

			summaries, err := storage.ListSummaries()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tMESSAGES\tTITLE")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), s.MessageCount, s.Title)
			}
			return w.Flush()
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			storage, closeStorage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer closeStorage()

			sess, err := storage.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s (%s)\n\n", sess.ID, sess.Title())
			for _, msg := range sess.Messages {
				fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Timestamp.Format("15:04:05"))
				for _, block := range msg.Content {
					switch block.Kind {
					case llm.BlockText:
						fmt.Fprintf(out, "  %s\n", block.Text)
					case llm.BlockToolUse:
						fmt.Fprintf(out, "  tool %s(%s)\n", block.ToolUse.Name, block.ToolUse.Input)
					case llm.BlockToolResult:
						status := ""
						if block.ToolResult.IsError {
							status = " [error]"
						}
						fmt.Fprintf(out, "  result%s: %s\n", status, block.ToolResult.Content)
					}
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			storage, closeStorage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer closeStorage()

			deleted, err := storage.Delete(args[0])
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s not found.\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s.\n", args[0])
			return nil
		},
	}
}
