// Command axel is the coding assistant CLI: it runs the gateway server
// and talks to it for chat and fill-in-the-middle completions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
)

const usage = `axel is a coding assistant backed by pluggable LLM providers.

Usage:
  axel serve --config <path> [--port <port>]
  axel chat [flags] <message>
  axel fim [flags]

Commands:
  serve    Start the gateway HTTP server
  chat     Send a chat message to the gateway
  fim      Request a fill-in-the-middle completion

Flags:
  -h, --help  Show this help message

The chat and fim commands read the gateway address from --backend-url or
the AXEL_BACKEND_URL environment variable, defaulting to
http://localhost:8080.`

func main() {
	// Missing .env is the common case and not an error.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serveCmd(ctx, args[1:])
	case "chat":
		return chatCmd(ctx, args[1:])
	case "fim":
		return fimCmd(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}
