package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwojciec/groq"
	"github.com/fwojciec/groq/jsonl"
)

func newBatchesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Run asynchronous batch jobs",
	}
	cmd.AddCommand(
		newBatchesPrepareCommand(a),
		newBatchesCreateCommand(a),
		newBatchesGetCommand(a),
		newBatchesListCommand(a),
		newBatchesCancelCommand(a),
		newBatchesWaitCommand(a),
		newBatchesResultsCommand(a),
	)
	return cmd
}

func newBatchesPrepareCommand(a *app) *cobra.Command {
	var model, system string
	cmd := &cobra.Command{
		Use:   "prepare <prompts.txt> <out.jsonl>",
		Short: "Build a batch input file with one request per non-blank line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if model == "" {
				model = cfg.Model
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open prompts: %w", err)
			}
			defer f.Close()

			var reqs []jsonl.Request
			sc := bufio.NewScanner(f)
			line := 0
			for sc.Scan() {
				line++
				prompt := strings.TrimSpace(sc.Text())
				if prompt == "" {
					continue
				}
				body := groq.ChatCompletionRequest{Model: model}
				if system != "" {
					body.Messages = append(body.Messages, groq.SystemMessage(system))
				}
				body.Messages = append(body.Messages, groq.UserMessage(prompt))
				reqs = append(reqs, jsonl.Request{CustomID: "line-" + strconv.Itoa(line), Body: body})
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("read prompts: %w", err)
			}
			if err := jsonl.WriteFile(args[1], reqs); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d requests to %s\n", len(reqs), args[1])
			return err
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model ID (default from config)")
	cmd.Flags().StringVarP(&system, "system", "s", "", "System prompt for every request")
	return cmd
}

func newBatchesCreateCommand(a *app) *cobra.Command {
	var req groq.BatchCreateRequest
	cmd := &cobra.Command{
		Use:   "create <input-file-id>",
		Short: "Start a batch over an uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			r := req
			r.InputFileID = args[0]
			b, err := client.CreateBatch(cmd.Context(), r)
			if err != nil {
				return err
			}
			return printBatch(cmd, b)
		},
	}
	cmd.Flags().StringVar(&req.CompletionWindow, "window", "24h", "Completion window (24h to 7d)")
	cmd.Flags().StringVar(&req.Endpoint, "endpoint", "", "Target endpoint (default chat completions)")
	return cmd
}

func newBatchesGetCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <batch-id>",
		Short: "Show a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			b, err := client.RetrieveBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, b)
			}
			return printBatch(cmd, b)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newBatchesListCommand(a *app) *cobra.Command {
	var params groq.ListParams
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			l, err := client.ListBatches(cmd.Context(), params)
			if err != nil {
				return err
			}
			colorize := isTerminal(cmd.OutOrStdout())
			rows := make([][]string, 0, len(l.Data))
			for _, b := range l.Data {
				rows = append(rows, []string{
					b.ID,
					statusLabel(b.Status, colorize),
					fmt.Sprintf("%d/%d", b.RequestCounts.Completed, b.RequestCounts.Total),
					formatUnix(b.CreatedAt),
				})
			}
			out := renderTable([]string{"ID", "Status", "Done", "Created"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
			if l.HasMore {
				out += "\n" + mutedStyle.Render("more: --after "+l.LastID)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&params.After, "after", "", "Cursor from a previous page")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "Page size")
	return cmd
}

func newBatchesCancelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Cancel a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			b, err := client.CancelBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printBatch(cmd, b)
		},
	}
}

func newBatchesWaitCommand(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "wait <batch-id>",
		Short: "Poll a batch until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			errOut := cmd.ErrOrStderr()
			colorize := isTerminal(errOut)
			last := ""
			b, err := client.WaitBatch(cmd.Context(), args[0], interval, func(b *groq.Batch) {
				line := fmt.Sprintf("%s %d/%d", statusLabel(b.Status, colorize), b.RequestCounts.Completed, b.RequestCounts.Total)
				if line != last {
					fmt.Fprintln(errOut, line)
					last = line
				}
			})
			if err != nil {
				return err
			}
			if err := printBatch(cmd, b); err != nil {
				return err
			}
			if b.Status != groq.BatchCompleted {
				return fmt.Errorf("batch %s ended with status %s", b.ID, b.Status)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "Polling interval")
	return cmd
}

func newBatchesResultsCommand(a *app) *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "results <batch-id>",
		Short: "Summarize the output of a completed batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			b, err := client.RetrieveBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var results []jsonl.Result
			for _, id := range []string{b.OutputFileID, b.ErrorFileID} {
				if id == "" {
					continue
				}
				data, err := client.FileContent(cmd.Context(), id)
				if err != nil {
					return err
				}
				rs, err := jsonl.ReadResults(bytes.NewReader(data))
				if err != nil {
					return fmt.Errorf("file %s: %w", id, err)
				}
				results = append(results, rs...)
			}
			if len(results) == 0 {
				return fmt.Errorf("batch %s has no output yet (status %s)", b.ID, b.Status)
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "-"
				if r.Response != nil {
					status = strconv.Itoa(r.Response.StatusCode)
				}
				resp, err := r.Completion()
				text := ""
				if err != nil {
					text = err.Error()
				} else {
					text = resp.Content()
				}
				rows = append(rows, []string{r.CustomID, status, truncate(text, width)})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Custom ID", "Status", "Content"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return err
		},
	}
	cmd.Flags().IntVar(&width, "width", 60, "Maximum characters of content per row")
	return cmd
}

func printBatch(cmd *cobra.Command, b *groq.Batch) error {
	colorize := isTerminal(cmd.OutOrStdout())
	rows := [][]string{
		{"ID", b.ID},
		{"Status", statusLabel(b.Status, colorize)},
		{"Input file", b.InputFileID},
		{"Requests", fmt.Sprintf("%d total, %d completed, %d failed", b.RequestCounts.Total, b.RequestCounts.Completed, b.RequestCounts.Failed)},
		{"Created", formatUnix(b.CreatedAt)},
	}
	if b.OutputFileID != "" {
		rows = append(rows, []string{"Output file", b.OutputFileID})
	}
	if b.ErrorFileID != "" {
		rows = append(rows, []string{"Error file", b.ErrorFileID})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
	return err
}
