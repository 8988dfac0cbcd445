package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fwojciec/groq"
	"github.com/fwojciec/groq/goldmark"
)

type chatOptions struct {
	model       string
	system      string
	stream      bool
	temperature float64
	maxTokens   int
	raw         bool
	json        bool
}

func newChatCommand(a *app) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Send a prompt to a chat model",
		Long: "Send a prompt to a chat model. The prompt is read from stdin when no\n" +
			"arguments are given or the only argument is \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			req := groq.ChatCompletionRequest{Model: cfg.Model}
			if opts.model != "" {
				req.Model = opts.model
			}
			if opts.system != "" {
				req.Messages = append(req.Messages, groq.SystemMessage(opts.system))
			}
			req.Messages = append(req.Messages, groq.UserMessage(prompt))
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &opts.temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				req.MaxCompletionTokens = &opts.maxTokens
			}

			if opts.stream {
				return runChatStream(cmd, a, client, req, opts)
			}
			resp, err := client.ChatCompletion(cmd.Context(), req)
			if err != nil {
				return err
			}
			logUsage(a.log(), resp.Usage)
			return printCompletion(cmd, a, resp, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model ID (default from config)")
	cmd.Flags().StringVarP(&opts.system, "system", "s", "", "System prompt")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print tokens as they arrive")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 1, "Sampling temperature (0-2)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Maximum completion tokens")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the answer without markdown rendering")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the full response as JSON")
	return cmd
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

func printCompletion(cmd *cobra.Command, a *app, resp *groq.ChatCompletionResponse, opts chatOptions) error {
	out := cmd.OutOrStdout()
	switch {
	case opts.json:
		return writeJSON(cmd, resp)
	case opts.raw || !isTerminal(out):
		_, err := fmt.Fprintln(out, resp.Content())
		return err
	default:
		_, err := fmt.Fprintln(out, goldmark.RenderCompletion(resp, a.width(), goldmark.DefaultTheme()))
		return err
	}
}

// runChatStream prints deltas as they arrive. On a terminal the assembled
// answer is not re-rendered, so markdown stays as the model wrote it.
func runChatStream(cmd *cobra.Command, a *app, client *groq.Client, req groq.ChatCompletionRequest, opts chatOptions) error {
	req.StreamOptions = &groq.StreamOptions{IncludeUsage: true}
	s, err := client.ChatCompletionStream(cmd.Context(), req)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Keep what was printed; finish the line before reporting.
			fmt.Fprintln(out)
			return err
		}
		if opts.json {
			continue
		}
		if _, err := io.WriteString(out, chunk.Content()); err != nil {
			return err
		}
	}

	resp, err := s.Response()
	if err != nil {
		return err
	}
	logUsage(a.log(), resp.Usage)
	if opts.json {
		return writeJSON(cmd, resp)
	}
	_, err = fmt.Fprintln(out)
	return err
}

func logUsage(logger *zap.Logger, u groq.Usage) {
	logger.Info("usage",
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
		zap.Int("total_tokens", u.TotalTokens),
		zap.Float64("total_time", u.TotalTime),
	)
}
