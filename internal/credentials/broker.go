package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/mqtt"
)

// Retry limits for transport-level failures.
const (
	// defaultConnectRetries bounds retries after a failed dial.
	defaultConnectRetries = 5

	// defaultReadRetries bounds retries after the connection was made but
	// the response could not be read.
	defaultReadRetries = 2

	// defaultMaxRedirects bounds followed redirects per attempt.
	defaultMaxRedirects = 5

	// defaultAttemptTimeout applies when the config leaves it unset.
	defaultAttemptTimeout = 10 * time.Second

	// maxResponseSize caps the credentials response body.
	maxResponseSize = 64 << 10

	// thingNameHeader names the thing the certificate is attached to.
	thingNameHeader = "x-amzn-iot-thingname"
)

// Credentials are short-lived cloud credentials.
// They live in process memory only and are never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// response is the JSON body returned by the credentials endpoint.
type response struct {
	Credentials struct {
		AccessKeyID     string    `json:"accessKeyId"`
		SecretAccessKey string    `json:"secretAccessKey"`
		SessionToken    string    `json:"sessionToken"`
		Expiration      time.Time `json:"expiration"`
	} `json:"credentials"`
}

// Logger interface for optional retry logging.
type Logger interface {
	Warn(msg string, args ...any)
}

// Broker fetches credentials from a role-alias endpoint.
//
// Thread Safety:
//   - Fetch is safe for concurrent use; each call performs its own exchange.
type Broker struct {
	url            string
	thingName      string
	client         *http.Client
	connectRetries int
	readRetries    int
	newBackOff     func() backoff.BackOff
	logger         Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithHTTPClient replaces the mTLS client built from the certificate files.
// The redirect limit is still enforced.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Broker) {
		clone := *c
		clone.CheckRedirect = limitRedirects(defaultMaxRedirects)
		b.client = &clone
	}
}

// WithBackOff sets the delay policy between retries.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(b *Broker) { b.newBackOff = newBackOff }
}

// WithLogger sets a logger for retry warnings.
func WithLogger(l Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// NewBroker creates a Broker for the configured role alias, authenticating
// with the device certificate and key.
//
// Parameters:
//   - cfg: Credentials section of the configuration
//   - mqttCfg: MQTT section, which holds the certificate, key and CA paths
//   - opts: Optional overrides (HTTP client, back-off, logger)
//
// Returns:
//   - *Broker: Ready to Fetch
//   - error: If the certificate or CA bundle cannot be loaded
func NewBroker(cfg config.CredentialsConfig, mqttCfg config.MQTTConfig, opts ...Option) (*Broker, error) {
	b := &Broker{
		url:            fmt.Sprintf("https://%s/role-aliases/%s/credentials", cfg.Endpoint, cfg.RoleAlias),
		thingName:      cfg.ThingName,
		connectRetries: defaultConnectRetries,
		readRetries:    defaultReadRetries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		tlsConfig, err := mqtt.LoadTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}

		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = defaultAttemptTimeout
		}

		b.client = &http.Client{
			Timeout:       timeout,
			CheckRedirect: limitRedirects(defaultMaxRedirects),
			Transport: &http.Transport{
				TLSClientConfig:     tlsConfig,
				TLSHandshakeTimeout: timeout,
			},
		}
	}

	return b, nil
}

// FetchCredentials performs a single credential exchange with default
// retry limits.
func FetchCredentials(ctx context.Context, cfg config.CredentialsConfig, mqttCfg config.MQTTConfig) (Credentials, error) {
	b, err := NewBroker(cfg, mqttCfg)
	if err != nil {
		return Credentials{}, err
	}
	return b.Fetch(ctx)
}

// Fetch exchanges the certificate for credentials.
//
// Transport failures are retried with exponential back-off: up to 5 times
// when the connection could not be established and up to 2 times when it
// was established but the response could not be read. HTTP error statuses
// are never retried.
//
// Returns:
//   - Credentials: Temporary credentials
//   - error: Wrapping ErrCredentialFetch on any failure
func (b *Broker) Fetch(ctx context.Context) (Credentials, error) {
	var connectFailures, readFailures int

	operation := func() (Credentials, error) {
		creds, err := b.attempt(ctx)
		if err == nil {
			return creds, nil
		}

		switch classify(err) {
		case failureConnect:
			connectFailures++
			if connectFailures > b.connectRetries {
				return Credentials{}, backoff.Permanent(fmt.Errorf("%w: connect retries exhausted: %w", ErrCredentialFetch, err))
			}
		case failureRead:
			readFailures++
			if readFailures > b.readRetries {
				return Credentials{}, backoff.Permanent(fmt.Errorf("%w: read retries exhausted: %w", ErrCredentialFetch, err))
			}
		default:
			return Credentials{}, backoff.Permanent(err)
		}

		if b.logger != nil {
			b.logger.Warn("credential fetch failed, retrying",
				"connect_failures", connectFailures,
				"read_failures", readFailures,
				"error", err,
			)
		}
		return Credentials{}, err
	}

	creds, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b.newBackOff()),
		backoff.WithMaxTries(uint(b.connectRetries+b.readRetries+1)),
	)
	if err != nil {
		if !errors.Is(err, ErrCredentialFetch) {
			err = fmt.Errorf("%w: %w", ErrCredentialFetch, err)
		}
		return Credentials{}, err
	}
	return creds, nil
}

// attempt performs one HTTPS exchange.
func (b *Broker) attempt(ctx context.Context) (Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: building request: %w", ErrCredentialFetch, err)
	}
	if b.thingName != "" {
		req.Header.Set(thingNameHeader, b.thingName)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return Credentials{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("%w: unexpected status %d", ErrCredentialFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Credentials{}, err
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return Credentials{}, fmt.Errorf("%w: decoding response: %w", ErrCredentialFetch, err)
	}

	c := r.Credentials
	if c.AccessKeyID == "" || c.SecretAccessKey == "" || c.SessionToken == "" {
		return Credentials{}, fmt.Errorf("%w: response is missing credential fields", ErrCredentialFetch)
	}

	return Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		Expiration:      c.Expiration,
	}, nil
}

type failureKind int

const (
	failurePermanent failureKind = iota
	failureConnect
	failureRead
)

// classify sorts an attempt error into a retry budget.
func classify(err error) failureKind {
	if errors.Is(err, ErrCredentialFetch) || errors.Is(err, ErrTooManyRedirects) {
		return failurePermanent
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return failureConnect
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureRead
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return failureRead
	}

	return failurePermanent
}

// limitRedirects stops following redirects after limit hops.
func limitRedirects(limit int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > limit {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, limit)
		}
		return nil
	}
}
