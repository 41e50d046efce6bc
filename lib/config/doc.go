// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads llmchat configuration.
//
// Values are layered in a fixed order, each layer overriding the one
// before it:
//
//  1. [Default]: built-in defaults (bind 0.0.0.0:8000, info logging).
//  2. An optional file named by the --config flag or the LLMCHAT_CONFIG
//     environment variable. The extension picks the format: .yaml and
//     .yml are YAML, .json and .jsonc are JSON with comments and
//     trailing commas allowed.
//  3. Environment variables: CHAT_MODEL_URL, CHAT_MODEL_NAME,
//     SYSTEM_PROMPT, CHAT_API_KEY (or OPENAI_API_KEY), CHAT_HOST and
//     CHAT_PORT (or GRADIO_HOST and GRADIO_PORT).
//  4. ${VAR} and ${VAR:-default} expansion on string fields.
//
// A missing model endpoint or name is not a load error. [Config.Problems]
// reports it so the caller can warn at startup; the failure itself
// surfaces on the first exchange.
//
// This package depends on no other llmchat packages.
package config
