// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// llmchat is a terminal chat client for OpenAI-compatible completion
// endpoints.
//
// With no flags it runs the interactive TUI: a scrollable transcript
// with markdown-rendered replies that stream in as the model produces
// them. With --prompt it sends a single message, streams the reply to
// stdout, and exits, which makes it usable from scripts.
//
// The endpoint is configured through CHAT_MODEL_URL and
// CHAT_MODEL_NAME, or a YAML/JSONC file passed with --config (see
// lib/config for every setting).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/llmchat/lib/chatui"
	"github.com/bureau-foundation/llmchat/lib/cli"
	"github.com/bureau-foundation/llmchat/lib/config"
	"github.com/bureau-foundation/llmchat/lib/exchange"
	"github.com/bureau-foundation/llmchat/lib/llm"
	"github.com/bureau-foundation/llmchat/lib/version"
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
	var prompt string
	var logOutput string

	flagSet := pflag.NewFlagSet("llmchat", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML or JSONC config file (default: $"+config.ConfigEnvVar+")")
	flagSet.StringVarP(&prompt, "prompt", "p", "", "send one message, stream the reply to stdout, and exit")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file (in addition to TUI display)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the server binary.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("llmchat")
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
		return cli.Validation("unexpected argument: %s", args[0]).
			WithHint("Pass a one-shot message with --prompt \"...\".")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return cli.Validation("loading configuration: %w", err)
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cli.Validation("log.level: %w", err)
	}

	if flagSet.Changed("prompt") {
		return runPrompt(cfg, level, prompt)
	}
	return runTUI(cfg, level, logOutput)
}

// newOrchestrator builds the provider and orchestrator from cfg.
func newOrchestrator(cfg *config.Config, logger *slog.Logger) *exchange.Orchestrator {
	provider := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL:    cfg.Model.URL,
		APIKey:     cfg.Model.APIKey,
		HTTPClient: newHTTPClient(cfg.ModelTimeout()),
		UserAgent:  version.Current().UserAgent("llmchat"),
	})
	return exchange.NewOrchestrator(exchange.Config{
		Provider:     provider,
		Model:        cfg.Model.Name,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Logger:       logger,
	})
}

// runPrompt streams one reply to stdout. Log records go to stderr.
func runPrompt(cfg *config.Config, level slog.Level, message string) error {
	logger, err := cli.NewCommandLogger(level, cfg.Log.Format)
	if err != nil {
		return err
	}
	for _, problem := range cfg.Problems() {
		logger.Warn(problem)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return streamReply(ctx, newOrchestrator(cfg, logger), message, os.Stdout, os.Stderr)
}

// runTUI runs the interactive chat. Log records at warn and above
// appear in the status bar; stderr would corrupt the alt-screen
// display. --log-output additionally captures every record to a file.
func runTUI(cfg *config.Config, level slog.Level, logOutput string) error {
	tuiHandler := chatui.NewTUILogHandler(max(level, slog.LevelWarn))

	var handler slog.Handler = tuiHandler
	if logOutput != "" {
		fileHandler, closeFile, err := cli.OpenFileLogHandler(logOutput)
		if err != nil {
			return cli.Validation("cannot open log file %s: %w", logOutput, err)
		}
		defer closeFile()
		handler = cli.FanoutHandler{tuiHandler, fileHandler}
	}
	logger := slog.New(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := chatui.NewModel(chatui.Config{
		Orchestrator: newOrchestrator(cfg, logger),
		Endpoint:     cfg.Model.URL,
		ModelName:    cfg.Model.Name,
		Context:      ctx,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	tuiHandler.SetProgram(program)

	// Configuration problems are reported once the program can show
	// them. Send blocks until the event loop starts.
	go func() {
		for _, problem := range cfg.Problems() {
			logger.Warn(problem)
		}
	}()

	_, err := program.Run()
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `llmchat: chat with an OpenAI-compatible model in the terminal.

Replies stream into the transcript as the model generates them. Press
enter to send, ctrl+l to clear the conversation, esc to quit.

Usage:
  llmchat [flags]

Examples:
  # Chat with a local model
  CHAT_MODEL_URL=http://localhost:12434/engines/v1 CHAT_MODEL_NAME=ai/smollm2 llmchat

  # One-shot reply on stdout
  llmchat --prompt "Summarize RFC 2119 in one sentence."

  # Settings from a file, with a debug log
  llmchat --config llmchat.yaml --log-output /tmp/llmchat.jsonl

Environment:
  CHAT_MODEL_URL   API root of the completion endpoint
  CHAT_MODEL_NAME  model identifier
  CHAT_API_KEY     bearer token (falls back to OPENAI_API_KEY)
  SYSTEM_PROMPT    first turn of every conversation

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
