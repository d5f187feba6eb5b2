// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads, normalizes and validates the unirpcd TOML
// configuration.
package config
