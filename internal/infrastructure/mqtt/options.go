package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectAttemptTimeout bounds a single network connect attempt
	// inside the client library. Callers bound the overall wait separately
	// with AwaitConnected.
	defaultConnectAttemptTimeout = 30 * time.Second

	// defaultKeepAlive is used when the config leaves keep_alive unset.
	defaultKeepAlive = 30 * time.Second

	// defaultMaxConnectRetryInterval caps the back-off between initial
	// connect attempts that could not reach the broker.
	defaultMaxConnectRetryInterval = 10 * time.Second

	// defaultRestoreTimeout bounds the wait for each re-sent subscription
	// after a reconnect.
	defaultRestoreTimeout = 30 * time.Second

	// defaultMaxReconnectInterval caps the back-off between reconnects
	// after the first successful connection.
	defaultMaxReconnectInterval = 60 * time.Second

	// tlsMinVersion is the minimum TLS version for broker connections.
	tlsMinVersion = tls.VersionTLS12
)

// LoadTLSConfig builds the mutual TLS configuration from the device
// certificate, private key and optional CA bundle.
//
// Returns:
//   - *tls.Config: Client configuration presenting the device certificate
//   - error: If a file is missing or unparseable
func LoadTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		MinVersion:   tlsMinVersion,
		Certificates: []tls.Certificate{cert},
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA file %s contains no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// buildClientOptions creates paho MQTT options from the relay config.
//
// This configures:
//   - Broker URL (ssl://endpoint:port)
//   - Client ID for identification
//   - Mutual TLS
//   - No library retry of the initial connect; the Coordinator retries dial
//     errors itself so refused connections still surface to the caller
//   - Auto-reconnect once a session has been established
//   - Clean session mode
//
// Lifecycle callbacks are attached by the Coordinator.
func buildClientOptions(cfg config.MQTTConfig, tlsConfig *tls.Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Initial failures are reported to the Coordinator; later drops reconnect
	// in the background
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(defaultMaxReconnectInterval)

	opts.SetConnectTimeout(defaultConnectAttemptTimeout)

	keepAlive := time.Duration(cfg.KeepAlive) * time.Second
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Deliver messages in order on the client's router goroutine
	opts.SetOrderMatters(true)

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}
