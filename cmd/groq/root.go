package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "groq",
		Short:         "Command-line client for the Groq API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log requests and retries to stderr")

	rootCmd.AddCommand(newChatCommand(a))
	rootCmd.AddCommand(newModelsCommand(a))
	rootCmd.AddCommand(newAudioCommand(a))
	rootCmd.AddCommand(newFilesCommand(a))
	rootCmd.AddCommand(newBatchesCommand(a))
	rootCmd.AddCommand(newFineTuningCommand(a))
	rootCmd.AddCommand(newConfigCommand(a))

	return rootCmd
}
