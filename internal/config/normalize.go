// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "strings"

func (c *Config) normalize() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.Transport = strings.ToLower(strings.TrimSpace(c.Server.Transport))
	if c.Server.Transport == "" {
		c.Server.Transport = defaultTransport
	}
	c.Server.MetricsBind = strings.TrimSpace(c.Server.MetricsBind)

	c.Codec.Wire = strings.ToLower(strings.TrimSpace(c.Codec.Wire))
	if c.Codec.Wire == "" {
		c.Codec.Wire = defaultWire
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	outputs := c.Logging.Outputs[:0]
	for _, out := range c.Logging.Outputs {
		if out = strings.TrimSpace(out); out != "" {
			outputs = append(outputs, out)
		}
	}
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	c.Logging.Outputs = outputs
}
