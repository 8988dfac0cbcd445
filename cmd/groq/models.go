package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and inspect models",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, models)
			}
			sort.Slice(models.Data, func(i, j int) bool { return models.Data[i].ID < models.Data[j].ID })
			rows := make([][]string, 0, len(models.Data))
			for _, m := range models.Data {
				rows = append(rows, []string{m.ID, m.OwnedBy, strconv.Itoa(m.ContextWindow), yesNo(m.Active)})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Owner", "Context", "Active"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return err
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	get := &cobra.Command{
		Use:   "get <model>",
		Short: "Show one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			m, err := client.RetrieveModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, m)
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}
