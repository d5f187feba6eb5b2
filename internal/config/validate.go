// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
)

var (
	validTransports = map[string]bool{"zmq": true, "zap": true, "http": true, "grpc": true}
	validWires      = map[string]bool{"json": true, "cbor": true}
	validLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats    = map[string]bool{"console": true, "json": true, "auto": true}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if !validTransports[c.Server.Transport] {
		return fmt.Errorf("server.transport: unsupported transport %q", c.Server.Transport)
	}
	if !validWires[c.Codec.Wire] {
		return fmt.Errorf("codec.wire: unsupported wire format %q", c.Codec.Wire)
	}
	if c.Server.Transport == "http" && c.Codec.Wire != "json" {
		return errors.New("codec.wire: the http transport requires json")
	}
	if c.Codec.Wire == "json" && !c.Codec.Base64 {
		return errors.New("codec.base64: json wire messages cannot carry raw bytes")
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format: unsupported format %q", c.Logging.Format)
	}
	if r := c.Logging.Rotation; r.MaxSizeMB < 0 || r.MaxBackups < 0 || r.MaxAgeDays < 0 {
		return errors.New("logging.rotation: limits must not be negative")
	}
	return nil
}
