package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/axelhq/axel/provider"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 512

	// Keeps a stray **/* glob from flooding the prompt.
	maxContextFiles = 32
	maxContextBytes = 256 * 1024
)

const chatUsage = `Usage:
  axel chat [flags] <message>

Flags:
  --provider    string   Provider to route to (gateway default if empty)
  --model       string   Model override for this request
  --session     string   Session id to continue a conversation
  --stream               Stream the reply token by token
  --context     glob     Glob of files to include as context (repeatable)
  --temperature float    Sampling temperature (default 0.2)
  --max-tokens  int      Completion token cap (default 512)
  --backend-url string   Gateway address (or AXEL_BACKEND_URL)`

// globList accumulates repeated --context flags.
type globList []string

func (g *globList) String() string {
	return strings.Join(*g, ",")
}

func (g *globList) Set(value string) error {
	*g = append(*g, value)
	return nil
}

func chatCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, chatUsage)
	}

	var (
		providerName string
		model        string
		sessionID    string
		stream       bool
		globs        globList
		temperature  float64
		maxTokens    int
		backendURL   string
	)
	fs.StringVar(&providerName, "provider", "", "provider to route to")
	fs.StringVar(&model, "model", "", "model override")
	fs.StringVar(&sessionID, "session", "", "session id to continue")
	fs.BoolVar(&stream, "stream", false, "stream the reply")
	fs.Var(&globs, "context", "glob of files to include as context")
	fs.Float64Var(&temperature, "temperature", defaultTemperature, "sampling temperature")
	fs.IntVar(&maxTokens, "max-tokens", defaultMaxTokens, "completion token cap")
	fs.StringVar(&backendURL, "backend-url", "", "gateway address")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse chat flags: %w", err)
	}

	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		return errors.New("chat command requires a message")
	}

	messages, err := buildMessages(message, globs)
	if err != nil {
		return err
	}

	payload := &chatPayload{
		Messages:    messages,
		Provider:    providerName,
		SessionID:   sessionID,
		Model:       model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	b := newBackend(resolveBackendURL(backendURL))

	if stream {
		gotSession, usage, err := b.chatStream(ctx, payload, func(delta string) {
			fmt.Print(delta)
		})
		fmt.Println()
		if err != nil {
			return err
		}
		printTrailer(gotSession, usage)
		return nil
	}

	reply, err := b.chat(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Println(reply.Content)
	printTrailer(reply.SessionID, reply.Usage)
	return nil
}

func printTrailer(sessionID string, usage *provider.Usage) {
	if sessionID != "" {
		fmt.Fprintf(os.Stderr, "\nsession: %s\n", sessionID)
	}
	if usage != nil {
		fmt.Fprintf(os.Stderr, "tokens: %d prompt + %d completion = %d\n",
			usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	}
}

// buildMessages assembles the outgoing conversation: matched context files
// become a leading system message, then the user's message.
func buildMessages(message string, globs []string) ([]provider.Message, error) {
	files, err := collectContextFiles(globs)
	if err != nil {
		return nil, err
	}

	var messages []provider.Message
	if len(files) > 0 {
		var sb strings.Builder
		sb.WriteString("Relevant files from the user's workspace:\n")
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("read context file %s: %w", f, err)
			}
			if sb.Len()+len(content) > maxContextBytes {
				break
			}
			fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", f, content)
		}
		messages = append(messages, provider.SystemMessage(sb.String()))
	}

	return append(messages, provider.UserMessage(message)), nil
}

// collectContextFiles expands each glob pattern, deduplicates, and caps
// the result.
func collectContextFiles(globs []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range globs {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad context glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if seen[m] {
				continue
			}
			seen[m] = true
			files = append(files, m)
			if len(files) >= maxContextFiles {
				return files, nil
			}
		}
	}
	return files, nil
}
