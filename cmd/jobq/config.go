package main

import (
	"fmt"
	"strings"

	"github.com/UniQw/jobq/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func configCmd(a *app) *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Show or change persisted settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			red := a.cfg.Redacted()
			if a.jsonOut {
				return a.printJSON(cmd, red)
			}
			data, err := yaml.Marshal(red)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", a.cfgPath, data)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting, e.g. config set max-retries 5",
		Long:  "Persist a setting to the config file. Valid keys:\n  " + strings.Join(config.Keys(), "\n  "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Start from the file alone so env overrides are not persisted.
			c, err := config.LoadFile(a.cfgPath)
			if err != nil {
				return err
			}
			if err := c.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			if err := config.Save(a.cfgPath, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}

	cfg.AddCommand(show, set)
	return cfg
}
