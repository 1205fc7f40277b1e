// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry sets up structured logging and OpenTelemetry export.
//
// Logs are JSON lines written through a rotating file so the terminal
// panel never has log output painted over it. When enabled, traces and
// metrics are written by the stdout exporters into their own rotated
// files under the telemetry directory.
//
// # Usage
//
//	logger, closeLog, err := telemetry.InitLogger(cfg.Log.Path, level)
//	defer closeLog()
//
//	shutdown, err := telemetry.InitTelemetry(ctx, cfg.Telemetry.Dir, version)
//	defer shutdown()
//
// Until InitTelemetry runs, the global OpenTelemetry providers are no-ops,
// so instrumented packages cost nothing when telemetry is off.
package telemetry
