// Package commands implements the forge CLI using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgeagent/forge/config"
	"github.com/forgeagent/forge/session"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Forge - headless coding agent",
		Long: `Forge runs coding tasks through an LLM-driven tool loop.

Examples:
  forge run "explain what cmd/forge/main.go does"
  forge run --auto-approve "fix the failing test in ./pkg/parser"
  forge sessions list
  forge config`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSessionsCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig reads the config file named by the --config flag, or searches
// standard locations when the flag is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openStorage builds the session storage backend selected by the config.
func openStorage(cfg *config.Config) (session.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case "", "file":
		storage, err := session.NewFileStorage(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return storage, func() {}, nil
	case "sqlite":
		path := cfg.Storage.Path
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(home, ".local", "share", "forge", "sessions.db")
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, nil, err
			}
		}
		storage, err := session.OpenSQLiteStorage(path, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		return storage, func() { _ = storage.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
