package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fwojciec/groq"
)

func newFineTuningCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fine-tuning",
		Aliases: []string{"ft"},
		Short:   "Manage fine-tuning jobs",
	}

	var req groq.FineTuningCreateRequest
	create := &cobra.Command{
		Use:   "create <input-file-id>",
		Short: "Start a fine-tuning job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			r := req
			r.InputFileID = args[0]
			ft, err := client.CreateFineTuning(cmd.Context(), r)
			if err != nil {
				return err
			}
			return writeJSON(cmd, ft)
		},
	}
	create.Flags().StringVar(&req.BaseModel, "base-model", "", "Model to fine-tune")
	create.Flags().StringVar(&req.Name, "name", "", "Job name")
	create.Flags().StringVar(&req.Type, "type", "lora", "Fine-tuning type")

	var params groq.ListParams
	list := &cobra.Command{
		Use:   "list",
		Short: "List fine-tuning jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			l, err := client.ListFineTunings(cmd.Context(), params)
			if err != nil {
				return err
			}
			colorize := isTerminal(cmd.OutOrStdout())
			rows := make([][]string, 0, len(l.Data))
			for _, ft := range l.Data {
				rows = append(rows, []string{ft.ID, ft.Name, ft.BaseModel, statusLabel(ft.Status, colorize), ft.FineTunedModel})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Base model", "Status", "Model"}, rows, nil))
			return err
		},
	}
	list.Flags().StringVar(&params.After, "after", "", "Cursor from a previous page")
	list.Flags().IntVar(&params.Limit, "limit", 0, "Page size")

	get := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a fine-tuning job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			ft, err := client.RetrieveFineTuning(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, ft)
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a fine-tuning job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			ft, err := client.CancelFineTuning(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, ft)
		},
	}

	cmd.AddCommand(create, list, get, cancel)
	return cmd
}
