package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultOTLPEndpoint is the OTLP/HTTP collector used when no endpoint
// variable is set.
const DefaultOTLPEndpoint = "localhost:4318"

// OTELConfig holds span export settings read from the standard OTEL_*
// variables.
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"pollscope"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:""`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" envDefault:""`
	Headers            string `env:"OTEL_EXPORTER_OTLP_HEADERS" envDefault:""`
	TracesHeaders      string `env:"OTEL_EXPORTER_OTLP_TRACES_HEADERS" envDefault:""`

	// ServiceVersion is set by the binary, not the environment.
	ServiceVersion string
}

// ParseOTELConfig reads OTELConfig from the environment.
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// GetEndpoint returns the traces endpoint.
// Priority: OTEL_EXPORTER_OTLP_TRACES_ENDPOINT > OTEL_EXPORTER_OTLP_ENDPOINT > default
func (c *OTELConfig) GetEndpoint() string {
	if c.TracesEndpoint != "" {
		return c.TracesEndpoint
	}
	if c.ExporterEndpoint != "" {
		return c.ExporterEndpoint
	}
	return DefaultOTLPEndpoint
}

// ParseResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES.
// Format: key1=value1,key2=value2
func (c *OTELConfig) ParseResourceAttributes() []attribute.KeyValue {
	pairs := parsePairs(c.ResourceAttributes)
	if len(pairs) == 0 {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, len(pairs))
	for _, p := range pairs {
		attrs = append(attrs, attribute.String(p[0], p[1]))
	}
	return attrs
}

// ParseHeaders merges the generic and traces-specific header variables,
// the latter winning on conflicts. Returns nil when none are set.
func (c *OTELConfig) ParseHeaders() map[string]string {
	var headers map[string]string
	for _, src := range []string{c.Headers, c.TracesHeaders} {
		for _, p := range parsePairs(src) {
			if headers == nil {
				headers = make(map[string]string)
			}
			headers[p[0]] = p[1]
		}
	}
	return headers
}

// parsePairs splits a W3C-baggage style key=value list in order. Values
// are percent-decoded when possible; entries without a key are skipped.
func parsePairs(s string) [][2]string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var out [][2]string
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		out = append(out, [2]string{key, value})
	}
	return out
}
