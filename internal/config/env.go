package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds defaults read from POLLSCOPE_* environment variables.
type EnvConfig struct {
	LogLevel string `env:"POLLSCOPE_LOG_LEVEL" envDefault:"warn"`
	Device   string `env:"POLLSCOPE_DEVICE" envDefault:""`
	Format   string `env:"POLLSCOPE_FORMAT" envDefault:""`

	MQTTBroker string `env:"POLLSCOPE_MQTT_BROKER" envDefault:""`
	// PEM files for TLS broker connections. Cert and key are optional.
	MQTTCAFile   string `env:"POLLSCOPE_MQTT_CA_FILE" envDefault:""`
	MQTTCertFile string `env:"POLLSCOPE_MQTT_CERT_FILE" envDefault:""`
	MQTTKeyFile  string `env:"POLLSCOPE_MQTT_KEY_FILE" envDefault:""`
}

// MQTTTLS reports whether any TLS file is configured.
func (e *EnvConfig) MQTTTLS() bool {
	return e.MQTTCAFile != "" || e.MQTTCertFile != "" || e.MQTTKeyFile != ""
}

// ParseEnv reads EnvConfig from the environment.
func ParseEnv() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}
