package output

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mrzor/pollscope/internal/analysis"
	"github.com/mrzor/pollscope/internal/logging"
)

var log = logging.Logger("output")

// MQTTOptions configures report publishing.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883 or ssl://broker:8883
	Topic    string
	ClientID string
	QoS      byte
	Retain   bool
	TLS      *tls.Config // optional
	Timeout  time.Duration
}

// MQTTPublisher sends finished reports to a broker topic as JSON.
type MQTTPublisher struct {
	client mqtt.Client
	opts   MQTTOptions
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.Timeout).
		SetAutoReconnect(false)
	if opts.TLS != nil {
		clientOpts.SetTLSConfig(opts.TLS)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("connecting to %s: timed out after %s", opts.Broker, opts.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", opts.Broker, err)
	}

	return newMQTTPublisher(client, opts), nil
}

func newMQTTPublisher(client mqtt.Client, opts MQTTOptions) *MQTTPublisher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &MQTTPublisher{client: client, opts: opts}
}

// Publish sends rep and waits for the broker to acknowledge it according
// to the configured QoS.
func (p *MQTTPublisher) Publish(rep *analysis.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	token := p.client.Publish(p.opts.Topic, p.opts.QoS, p.opts.Retain, payload)
	if !token.WaitTimeout(p.opts.Timeout) {
		return fmt.Errorf("publishing to %s: timed out after %s", p.opts.Topic, p.opts.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.opts.Topic, err)
	}

	log.Infow("report published", "topic", p.opts.Topic, "bytes", len(payload))
	return nil
}

// Close disconnects, allowing in-flight work 250ms to finish.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// NewTLSConfig builds a client TLS configuration from PEM files. certFile
// and keyFile may both be empty for server-only verification.
func NewTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile) //nolint:gosec // User-supplied certificate path
		if err != nil {
			return nil, fmt.Errorf("unable to read CA cert file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("unable to append CA cert to pool")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" || keyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("unable to load client cert and key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}
