// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and persists relaychat configuration.
//
// # Configuration Precedence
//
// Values are resolved in this order (highest first):
//   - Environment variables (RELAYCHAT_*, DEEPSEEK_API_KEY)
//   - ~/.relaychat/config.toml (or $RELAYCHAT_HOME/config.toml)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	cloud := transport.NewCloudClient(cfg.CloudTransport())
//
// Watch reloads the file on change so an API key added while the panel is
// open takes effect on the next request.
package config
