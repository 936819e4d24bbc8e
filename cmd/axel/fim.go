package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
)

const fimUsage = `Usage:
  axel fim --prompt <code before cursor> [--suffix <code after cursor>] [flags]

Flags:
  --prompt      string   Code before the cursor (required)
  --suffix      string   Code after the cursor
  --provider    string   Provider to route to (gateway default if empty)
  --model       string   Model override for this request
  --temperature float    Sampling temperature (default 0.2)
  --max-tokens  int      Completion token cap (default 512)
  --backend-url string   Gateway address (or AXEL_BACKEND_URL)`

func fimCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fim", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, fimUsage)
	}

	var (
		prompt       string
		suffix       string
		providerName string
		model        string
		temperature  float64
		maxTokens    int
		backendURL   string
	)
	fs.StringVar(&prompt, "prompt", "", "code before the cursor")
	fs.StringVar(&suffix, "suffix", "", "code after the cursor")
	fs.StringVar(&providerName, "provider", "", "provider to route to")
	fs.StringVar(&model, "model", "", "model override")
	fs.Float64Var(&temperature, "temperature", defaultTemperature, "sampling temperature")
	fs.IntVar(&maxTokens, "max-tokens", defaultMaxTokens, "completion token cap")
	fs.StringVar(&backendURL, "backend-url", "", "gateway address")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse fim flags: %w", err)
	}

	if prompt == "" && suffix == "" {
		return errors.New("fim command requires --prompt or --suffix")
	}

	b := newBackend(resolveBackendURL(backendURL))

	reply, err := b.fim(ctx, &fimPayload{
		Prompt:      prompt,
		Suffix:      suffix,
		Provider:    providerName,
		Model:       model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return err
	}

	fmt.Println(reply.Content)
	return nil
}
