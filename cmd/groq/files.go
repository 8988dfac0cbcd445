package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/fwojciec/groq"
)

func newFilesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage uploaded files",
	}
	cmd.AddCommand(
		newFilesUploadCommand(a),
		newFilesListCommand(a),
		newFilesGetCommand(a),
		newFilesDeleteCommand(a),
		newFilesContentCommand(a),
	)
	return cmd
}

// expandPatterns resolves doublestar patterns to a sorted, de-duplicated
// list of files. A pattern that matches nothing is an error.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern: %s", p)
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %s", p)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func newFilesUploadCommand(a *app) *cobra.Command {
	var purpose string
	cmd := &cobra.Command{
		Use:   "upload <pattern>...",
		Short: "Upload JSONL files matching glob patterns (** supported)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			// Validate everything before the first upload.
			reqs := make([]groq.FileCreateRequest, 0, len(paths))
			for _, p := range paths {
				req, err := groq.NewFileCreateRequest(p, purpose)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}

			client, _, err := a.client()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(reqs))
			for _, req := range reqs {
				f, err := client.CreateFile(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("upload %s: %w", req.Path, err)
				}
				rows = append(rows, []string{f.ID, req.Path, formatBytes(f.Bytes)})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "File", "Size"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return err
		},
	}
	cmd.Flags().StringVar(&purpose, "purpose", groq.PurposeBatch, "File purpose: batch or fine-tune")
	return cmd
}

func newFilesListCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			files, err := client.ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, files)
			}
			rows := make([][]string, 0, len(files.Data))
			for _, f := range files.Data {
				rows = append(rows, []string{f.ID, f.Filename, f.Purpose, formatBytes(f.Bytes), formatUnix(f.CreatedAt)})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Filename", "Purpose", "Size", "Created"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newFilesGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <file-id>",
		Short: "Show file metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			f, err := client.RetrieveFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, f)
		},
	}
}

func newFilesDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			d, err := client.DeleteFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !d.Deleted {
				return errors.New("file was not deleted")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", d.ID)
			return err
		},
	}
}

func newFilesContentCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "content <file-id>",
		Short: "Download file content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			data, err := client.FileContent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", output, formatBytes(int64(len(data))))
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
