// Command groq is a command-line client for the Groq API.
//
// Usage:
//
//	GROQ_API_KEY=gsk_... groq chat "Explain backoff in one sentence"
//	groq chat --stream --model openai/gpt-oss-20b "Write a haiku"
//	groq models list
//	groq audio transcribe meeting.m4a
//	groq files upload 'batches/**/*.jsonl'
//	groq batches wait batch_01abc
//
// Settings come from ~/.config/groq/config.toml (or ./groq.toml), then
// GROQ_API_KEY, GROQ_BASE_URL, GROQ_MODEL, GROQ_PROXY_URL and
// GROQ_TIMEOUT_SECS.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCommand(newApp(os.LookupEnv))
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "groq: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
