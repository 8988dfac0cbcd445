package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fwojciec/groq"
	"github.com/fwojciec/groq/toml"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration",
	}

	var showKey bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", a.configPath)
			return toml.Encode(out, *cfg, showKey)
		},
	}
	show.Flags().BoolVar(&showKey, "show-key", false, "Print the API key unmasked")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and credential format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid")
			return err
		},
	}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := toml.WriteSample(path)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\nSet api_key there or export %s.\n", written, groq.EnvAPIKey)
			return err
		},
	}
	initCmd.Flags().StringVar(&path, "path", toml.DefaultPath, "Destination path")

	cmd.AddCommand(show, validate, initCmd)
	return cmd
}
