package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fwojciec/groq"
)

const defaultAudioModel = "whisper-large-v3-turbo"

func newAudioCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Transcribe or translate speech",
	}
	cmd.AddCommand(
		newAudioSubcommand(a, "transcribe", "Transcribe speech in its spoken language", false),
		newAudioSubcommand(a, "translate", "Translate speech to English text", true),
	)
	return cmd
}

func newAudioSubcommand(a *app, use, short string, translate bool) *cobra.Command {
	var (
		req         groq.AudioRequest
		temperature float64
		granularity []string
	)
	cmd := &cobra.Command{
		Use:   use + " <file|url>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			r := req
			if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
				r.URL = args[0]
			} else {
				r.File = args[0]
			}
			if cmd.Flags().Changed("temperature") {
				r.Temperature = &temperature
			}
			r.TimestampGranularities = granularity

			var t *groq.Transcription
			if translate {
				t, err = client.Translate(cmd.Context(), r)
			} else {
				t, err = client.Transcribe(cmd.Context(), r)
			}
			if err != nil {
				return err
			}
			if r.ResponseFormat == "verbose_json" {
				return writeJSON(cmd, t)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(t.Text, "\n"))
			return err
		},
	}

	model := defaultAudioModel
	if translate {
		// Translation is not served by the turbo model.
		model = "whisper-large-v3"
	}
	cmd.Flags().StringVarP(&req.Model, "model", "m", model, "Speech model ID")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Context or spelling hints")
	cmd.Flags().StringVarP(&req.ResponseFormat, "format", "f", "", "Response format: json, text, srt, verbose_json, vtt")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (0-1)")
	if !translate {
		cmd.Flags().StringVarP(&req.Language, "language", "l", "", "ISO-639-1 language of the audio")
		cmd.Flags().StringSliceVar(&granularity, "timestamps", nil, "Timestamp granularities (word, segment); needs verbose_json")
	}
	return cmd
}
