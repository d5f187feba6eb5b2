// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	defaultBind      = "tcp://*:5555"
	defaultTransport = "zmq"
	defaultWire      = "json"
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:      defaultBind,
			Transport: defaultTransport,
		},
		Codec: Codec{
			Wire:   defaultWire,
			Base64: true,
		},
		Logging: Logging{
			Level:   defaultLogLevel,
			Format:  defaultLogFormat,
			Outputs: []string{"stderr"},
			Rotation: Rotation{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}
