package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/axelhq/axel/config"
	"github.com/axelhq/axel/provider"
	"github.com/axelhq/axel/router"
	"github.com/axelhq/axel/server"
	"github.com/axelhq/axel/session"

	// Vendor packages self-register via init().
	_ "github.com/axelhq/axel/anthropic"
	_ "github.com/axelhq/axel/gemini"
	_ "github.com/axelhq/axel/openaicompat"
	_ "github.com/axelhq/axel/vertexmistral"
)

const serveUsage = `Usage:
  axel serve --config <path> [--port <port>]

Flags:
  --config string   Path to YAML configuration file (required)
  --port   int      Override server port from configuration
  --debug           Enable debug logging`

func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	var debug bool
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")
	fs.BoolVar(&debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("serve command requires --config <path>")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	registry := provider.NewRegistry()
	cfg.Apply(registry)

	rt := router.New(registry, session.NewMemoryStore(), router.Defaults{
		Provider: cfg.Defaults.Provider,
		Timeout:  time.Duration(cfg.Defaults.Timeout),
	}, log)

	srv, err := server.New(cfg.Server.Port, rt, log)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
