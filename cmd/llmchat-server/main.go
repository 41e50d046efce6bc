// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// llmchat-server serves the browser chat UI for an OpenAI-compatible
// completion endpoint.
//
// It binds CHAT_HOST:CHAT_PORT (default 0.0.0.0:8000) and serves a
// single-page chat at "/" whose replies stream in over server-sent
// events. The server keeps no conversation state: each browser tab
// owns its history and sends it with every message.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/llmchat/lib/cli"
	"github.com/bureau-foundation/llmchat/lib/config"
	"github.com/bureau-foundation/llmchat/lib/exchange"
	"github.com/bureau-foundation/llmchat/lib/llm"
	"github.com/bureau-foundation/llmchat/lib/version"
	"github.com/bureau-foundation/llmchat/lib/webchat"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var address string

	flagSet := pflag.NewFlagSet("llmchat-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML or JSONC config file (default: $"+config.ConfigEnvVar+")")
	flagSet.StringVar(&address, "listen", "", "listen address, overriding server.host and server.port (e.g., 127.0.0.1:8080)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("llmchat-server")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if args := flagSet.Args(); len(args) > 0 {
		return cli.Validation("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return cli.Validation("loading configuration: %w", err)
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cli.Validation("log.level: %w", err)
	}
	if address == "" {
		address = cfg.Address()
	}

	logger, err := cli.NewCommandLogger(level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger = logger.With("command", "llmchat-server")

	// Missing endpoint settings are not fatal: every exchange
	// reports the problem to the browser as an error turn.
	for _, problem := range cfg.Problems() {
		logger.Warn(problem)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := http.DefaultClient
	if timeout := cfg.ModelTimeout(); timeout > 0 {
		httpClient = &http.Client{Timeout: timeout}
	}
	orchestrator := exchange.NewOrchestrator(exchange.Config{
		Provider: llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:    cfg.Model.URL,
			APIKey:     cfg.Model.APIKey,
			HTTPClient: httpClient,
			UserAgent:  version.Current().UserAgent("llmchat-server"),
		}),
		Model:        cfg.Model.Name,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Logger:       logger,
	})

	server := webchat.NewServer(webchat.ServerConfig{
		Address: address,
		Handler: webchat.NewHandler(webchat.HandlerConfig{
			Orchestrator: orchestrator,
			Endpoint:     cfg.Model.URL,
			Model:        cfg.Model.Name,
			Logger:       logger,
		}),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Logger:          logger,
	})

	logger.Info("starting",
		"build", version.Current(),
		"endpoint", cfg.Model.URL,
		"model", cfg.Model.Name,
	)
	started := time.Now()
	err = server.Serve(ctx)
	logger.Info("exiting", "uptime", time.Since(started).Round(time.Second))
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `llmchat-server: browser chat UI for an OpenAI-compatible model.

Usage:
  llmchat-server [flags]

Examples:
  # Serve on the default 0.0.0.0:8000
  CHAT_MODEL_URL=http://localhost:12434/engines/v1 CHAT_MODEL_NAME=ai/smollm2 llmchat-server

  # Loopback only, settings from a file
  llmchat-server --config llmchat.yaml --listen 127.0.0.1:8080

Environment:
  CHAT_MODEL_URL   API root of the completion endpoint
  CHAT_MODEL_NAME  model identifier
  CHAT_API_KEY     bearer token (falls back to OPENAI_API_KEY)
  SYSTEM_PROMPT    first turn of every conversation
  CHAT_HOST        bind host (falls back to GRADIO_HOST)
  CHAT_PORT        bind port (falls back to GRADIO_PORT)

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
