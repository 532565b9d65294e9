// Package config provides the environment driven settings for the server.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
)

// Settings is the settings provider for the server.
type Settings struct {
	Port              int    `env:"GRCFLOW_PORT" envDefault:"50000"`
	NatsURL           string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	LogLevel          string `env:"GRCFLOW_LOG_LEVEL" envDefault:"debug"`
	LogHandler        string `env:"GRCFLOW_LOG_HANDLER" envDefault:"text"`
	EphemeralStorage  bool   `env:"GRCFLOW_EPHEMERAL_STORAGE" envDefault:"false"`
	JetStreamDomain   string `env:"GRCFLOW_JETSTREAM_DOMAIN" envDefault:""`
	TelemetryEndpoint string `env:"GRCFLOW_TELEMETRY_ENDPOINT" envDefault:""`
}

// GetEnvironment pulls the active settings into a settings struct.
func GetEnvironment() (*Settings, error) {
	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment settings: %w", err)
	}
	return cfg, nil
}
