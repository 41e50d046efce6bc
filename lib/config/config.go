// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar names the environment variable holding the config file
// path when no --config flag is given.
const ConfigEnvVar = "LLMCHAT_CONFIG"

// Config is the complete llmchat configuration.
type Config struct {
	// Model configures the completion endpoint.
	Model ModelConfig `yaml:"model" json:"model"`

	// Chat configures conversation behavior.
	Chat ChatConfig `yaml:"chat" json:"chat"`

	// Server configures the web surface (llmchat-server only).
	Server ServerConfig `yaml:"server" json:"server"`

	// Log configures process logging.
	Log LogConfig `yaml:"log" json:"log"`
}

// ModelConfig configures the OpenAI-compatible completion endpoint.
type ModelConfig struct {
	// URL is the API root, e.g. http://localhost:12434/engines/v1.
	// Env: CHAT_MODEL_URL.
	URL string `yaml:"url" json:"url"`

	// Name is the model identifier sent with each request.
	// Env: CHAT_MODEL_NAME.
	Name string `yaml:"name" json:"name"`

	// APIKey is sent as a bearer token when set. Local endpoints
	// usually need none. Env: CHAT_API_KEY, then OPENAI_API_KEY.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout bounds a whole request including the streamed reply,
	// as a Go duration string. Empty means no timeout.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// ChatConfig configures conversation behavior.
type ChatConfig struct {
	// SystemPrompt is the first turn of every context. Empty uses
	// the built-in default. Env: SYSTEM_PROMPT.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Env: CHAT_HOST, then GRADIO_HOST.
	// Default: 0.0.0.0
	Host string `yaml:"host" json:"host"`

	// Port is the bind port. Env: CHAT_PORT, then GRADIO_PORT.
	// Default: 8000
	Port int `yaml:"port" json:"port"`

	// ShutdownTimeout is how long in-flight requests get to finish
	// after a shutdown signal. Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level" json:"level"`

	// Format is text, json, or empty to choose by whether stderr is
	// a terminal.
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: "10s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, the optional file at path, and
// the process environment. An empty path falls back to the file named
// by LLMCHAT_CONFIG; when that is also unset only defaults and the
// environment are used.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

// load is Load with an injectable environment, so tests need not
// mutate the process environment.
func load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path == "" {
		path, _ = lookupEnv(ConfigEnvVar)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvironment(lookupEnv); err != nil {
		return nil, err
	}

	cfg.expandVariables(lookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a single configuration file into the config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: unsupported config format %q (want .yaml, .yml, .json, or .jsonc)",
			path, filepath.Ext(path))
	}
	return nil
}

// applyEnvironment overrides fields from environment variables. For
// each field the first variable that is set wins, even when set to
// the empty string.
func (c *Config) applyEnvironment(lookupEnv func(string) (string, bool)) error {
	first := func(names ...string) (string, bool) {
		for _, name := range names {
			if value, ok := lookupEnv(name); ok {
				return value, true
			}
		}
		return "", false
	}

	if value, ok := first("CHAT_MODEL_URL"); ok {
		c.Model.URL = value
	}
	if value, ok := first("CHAT_MODEL_NAME"); ok {
		c.Model.Name = value
	}
	if value, ok := first("CHAT_API_KEY", "OPENAI_API_KEY"); ok {
		c.Model.APIKey = value
	}
	if value, ok := first("SYSTEM_PROMPT"); ok {
		c.Chat.SystemPrompt = value
	}
	if value, ok := first("CHAT_HOST", "GRADIO_HOST"); ok {
		c.Server.Host = value
	}
	if value, ok := first("CHAT_PORT", "GRADIO_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", value, err)
		}
		c.Server.Port = port
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in string fields.
func (c *Config) expandVariables(lookupEnv func(string) (string, bool)) {
	for _, field := range []*string{
		&c.Model.URL,
		&c.Model.Name,
		&c.Model.APIKey,
		&c.Chat.SystemPrompt,
		&c.Server.Host,
	} {
		*field = expandVars(*field, lookupEnv)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. An unset or
// empty variable takes the default, or the empty string.
func expandVars(s string, lookupEnv func(string) (string, bool)) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value, ok := lookupEnv(parts[1]); ok && value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks for malformed values. Missing endpoint settings are
// not errors; see [Config.Problems].
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := parseDuration(c.Model.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("model.timeout: %w", err))
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: %w", err))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Problems returns human-readable warnings about settings that will
// make every exchange fail. An empty result means the endpoint is
// fully configured.
func (c *Config) Problems() []string {
	var problems []string
	if strings.TrimSpace(c.Model.URL) == "" {
		problems = append(problems, "model endpoint is not set (CHAT_MODEL_URL or model.url)")
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		problems = append(problems, "model name is not set (CHAT_MODEL_NAME or model.name)")
	}
	return problems
}

// Address returns the host:port the web surface binds.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ModelTimeout returns the parsed model.timeout, zero meaning none.
// The value was checked by Validate.
func (c *Config) ModelTimeout() time.Duration {
	duration, _ := parseDuration(c.Model.Timeout)
	return duration
}

// ShutdownTimeout returns the parsed server.shutdown_timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	duration, _ := parseDuration(c.Server.ShutdownTimeout)
	return duration
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return duration, nil
}

// ParseLevel converts a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", name)
	}
}
