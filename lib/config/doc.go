// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the ipcbridge
// binaries.
//
// Configuration is loaded from a single file specified by either the
// IPCBRIDGE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files are YAML unless they end in .json or .jsonc, in which
// case comments are stripped and the body is decoded as JSON. Unknown
// keys are an error in both formats.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production defaults to JSON logs.
//
// ${HOME} and ${VAR:-default} patterns are expanded in socket paths and
// listen addresses after loading. No other environment variables
// override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Bridge, Transport, Log, Metrics, Host
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- checks every section, joining all errors
package config
