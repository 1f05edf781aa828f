package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/forgeagent/forge/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Never print resolved secrets.
			display := *cfg
			if display.LLM.APIKey != "" {
				display.LLM.APIKey = "(set)"
			}

			if path := config.FindConfigFile(); path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", path)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# built-in defaults (no config file found)")
			}

			data, err := yaml.Marshal(&display)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
