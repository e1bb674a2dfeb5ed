package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
	"github.com/nerrad567/chimp-relay/internal/pending"
)

// Coordinator owns the mutual TLS session to the broker and turns the
// client library's lifecycle callbacks into blocking calls.
//
// Four hooks are registered before the session starts, all of which run on
// client goroutines rather than the caller's:
//   - publish received: the MessageHandler given to NewCoordinator
//   - connection success: resolves the pending connection, or restores the
//     acknowledged subscriptions after an automatic reconnect
//   - connection failure: rejects the pending connection
//   - stopped: resolves the pending stop once Disconnect has returned
//
// An initial connect that fails to dial the broker is retried with back-off
// until AwaitConnected gives up, so an unreachable endpoint surfaces as
// ErrConnectTimeout. Refused CONNACKs and TLS errors are not retried.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Each pending result is single-assignment; repeated callbacks (for
//     example a reconnect firing connection success again) are no-ops.
type Coordinator struct {
	cfg        config.MQTTConfig
	options    *pahomqtt.ClientOptions
	newClient  func(*pahomqtt.ClientOptions) pahomqtt.Client
	newBackOff func() backoff.BackOff
	onPublish  MessageHandler

	mu     sync.RWMutex
	client pahomqtt.Client
	state  ConnectionState

	connected *pending.Operation[ConnectionInfo]
	stopped   *pending.Operation[struct{}]

	// subscriptions holds acknowledged filters; the session is clean, so
	// they are re-sent after every automatic reconnect.
	subscriptions map[string]QoS
	subMu         sync.Mutex

	// logger for lifecycle logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

type coordinatorOptions struct {
	tlsConfig  *tls.Config
	newClient  func(*pahomqtt.ClientOptions) pahomqtt.Client
	newBackOff func() backoff.BackOff
	logger     Logger
}

// WithTLSConfig supplies the TLS configuration instead of loading the
// certificate files named in the config.
func WithTLSConfig(tlsConfig *tls.Config) CoordinatorOption {
	return func(o *coordinatorOptions) { o.tlsConfig = tlsConfig }
}

// WithClientFactory replaces pahomqtt.NewClient.
func WithClientFactory(f func(*pahomqtt.ClientOptions) pahomqtt.Client) CoordinatorOption {
	return func(o *coordinatorOptions) { o.newClient = f }
}

// WithConnectBackOff sets the delay policy between initial connect attempts
// that could not reach the broker.
func WithConnectBackOff(newBackOff func() backoff.BackOff) CoordinatorOption {
	return func(o *coordinatorOptions) { o.newBackOff = newBackOff }
}

// WithLogger sets the lifecycle logger.
func WithLogger(l Logger) CoordinatorOption {
	return func(o *coordinatorOptions) { o.logger = l }
}

// NewCoordinator prepares a session without connecting.
//
// Parameters:
//   - cfg: MQTT configuration (endpoint, port, client ID, certificate paths)
//   - onPublish: Publish-received callback; must not block
//   - opts: Optional TLS config, client factory, logger
//
// Returns:
//   - *Coordinator: In the Idle state
//   - error: If the certificate or CA bundle cannot be loaded
func NewCoordinator(cfg config.MQTTConfig, onPublish MessageHandler, opts ...CoordinatorOption) (*Coordinator, error) {
	o := coordinatorOptions{
		newClient:  pahomqtt.NewClient,
		newBackOff: defaultConnectBackOff,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.tlsConfig == nil {
		tlsConfig, err := LoadTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		o.tlsConfig = tlsConfig
	}

	c := &Coordinator{
		cfg:           cfg,
		options:       buildClientOptions(cfg, o.tlsConfig),
		newClient:     o.newClient,
		newBackOff:    o.newBackOff,
		onPublish:     onPublish,
		state:         StateIdle,
		connected:     pending.New[ConnectionInfo](),
		stopped:       pending.New[struct{}](),
		subscriptions: make(map[string]QoS),
		logger:        o.logger,
	}

	c.options.SetDefaultPublishHandler(c.handlePublish)
	c.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnectionSuccess()
	})
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	c.options.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.logInfo("Reconnecting to broker", "broker", c.cfg.BrokerURL())
	})

	return c, nil
}

// Start begins connecting in the background (Idle→Connecting).
//
// Returns:
//   - error: ErrAlreadyStarted if Start was called before
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.client = c.newClient(c.options)
	c.state = StateConnecting
	client := c.client
	c.mu.Unlock()

	c.logInfo("Connecting to endpoint",
		"broker", c.cfg.BrokerURL(),
		"client_id", c.cfg.ClientID,
	)

	token := client.Connect()
	go c.watchConnect(token)

	return nil
}

// AwaitConnected blocks until the connection-success callback fires, the
// connection-failure callback fires, the timeout elapses, or ctx ends.
//
// Returns:
//   - ConnectionInfo: Details of the established session
//   - error: ErrNotStarted, ErrConnectTimeout, or ErrConnectFailure wrapping the cause
func (c *Coordinator) AwaitConnected(ctx context.Context, timeout time.Duration) (ConnectionInfo, error) {
	if c.State() == StateIdle {
		return ConnectionInfo{}, ErrNotStarted
	}

	info, err := c.connected.Wait(ctx, timeout)
	if errors.Is(err, pending.ErrTimeout) {
		return ConnectionInfo{}, fmt.Errorf("%w: no connection after %v", ErrConnectTimeout, timeout)
	}
	return info, err
}

// Stop begins disconnecting in the background (Connected→Stopping).
//
// Returns:
//   - error: ErrNotRunning if there is no session to stop
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != StateConnected && c.state != StateConnecting {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StateStopping
	client := c.client
	c.mu.Unlock()

	c.logInfo("Stopping Client")

	go func() {
		client.Disconnect(c.cfg.QuiesceMS)
		c.handleStopped()
	}()

	return nil
}

// AwaitStopped blocks until the stopped callback fires, the timeout
// elapses, or ctx ends.
//
// Returns:
//   - error: ErrNotRunning if Stop was never called, ErrStopTimeout on timeout
func (c *Coordinator) AwaitStopped(ctx context.Context, timeout time.Duration) error {
	switch c.State() {
	case StateStopping, StateStopped:
	default:
		return ErrNotRunning
	}

	_, err := c.stopped.Wait(ctx, timeout)
	if errors.Is(err, pending.ErrTimeout) {
		return fmt.Errorf("%w: still stopping after %v", ErrStopTimeout, timeout)
	}
	return err
}

// Abort drops the session without waiting, for use on fatal error paths.
// It is a no-op when nothing was started or the session already stopped.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	client := c.client
	switch c.state {
	case StateIdle, StateStopping, StateStopped:
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(0)
	}
	c.handleStopped()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the session is established.
func (c *Coordinator) IsConnected() bool {
	return c.State() == StateConnected
}

// SetLogger sets a logger for lifecycle events.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// activeClient returns the client while the session is established.
func (c *Coordinator) activeClient() (pahomqtt.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// watchConnect turns a failed connect token into the failure callback.
// Dial errors are retried instead, until the session is aborted or stopped.
func (c *Coordinator) watchConnect(token pahomqtt.Token) {
	b := c.newBackOff()
	for attempt := 1; ; attempt++ {
		<-token.Done()
		err := token.Error()
		if err == nil {
			return
		}

		delay := backoff.Stop
		if isDialError(err) {
			delay = b.NextBackOff()
		}
		if delay == backoff.Stop {
			c.handleConnectionFailure(err)
			return
		}

		c.logWarn("Broker unreachable, retrying",
			"broker", c.cfg.BrokerURL(),
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.stopped.Done():
			timer.Stop()
			return
		}

		next, ok := c.retryConnect()
		if !ok {
			return
		}
		token = next
	}
}

// retryConnect issues another connect while the session is still waiting
// for its first connection.
func (c *Coordinator) retryConnect() (pahomqtt.Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting || c.connected.Resolved() {
		return nil, false
	}
	return c.client.Connect(), true
}

// isDialError reports whether err means the broker could not be reached at
// all, as opposed to a refused CONNACK or a failed TLS handshake.
func isDialError(err error) bool {
	if !errors.Is(err, packets.ErrorNetworkError) {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// defaultConnectBackOff spaces initial connect attempts.
func defaultConnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = defaultMaxConnectRetryInterval
	return b
}

// handleConnectionSuccess is the connection-success hook. It also fires
// after every automatic reconnect, when the broker has dropped the
// subscriptions of the clean session.
func (c *Coordinator) handleConnectionSuccess() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	client := c.client
	c.mu.Unlock()

	if c.connected.Resolved() {
		c.logInfo("Lifecycle Reconnected", "broker", c.cfg.BrokerURL())
		go c.restoreSubscriptions(client)
		return
	}

	c.logInfo("Lifecycle Connection Success", "broker", c.cfg.BrokerURL())

	c.connected.Resolve(ConnectionInfo{
		Broker:      c.cfg.BrokerURL(),
		ClientID:    c.cfg.ClientID,
		ConnectedAt: time.Now(),
	})
}

// trackSubscription records an acknowledged subscription.
func (c *Coordinator) trackSubscription(sub Subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.TopicFilter] = sub.QoS
	c.subMu.Unlock()
}

// untrackSubscription forgets a withdrawn subscription.
func (c *Coordinator) untrackSubscription(filter string) {
	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()
}

// restoreSubscriptions re-sends every tracked subscription. It runs on its
// own goroutine so the connection-success hook never waits for the broker.
func (c *Coordinator) restoreSubscriptions(client pahomqtt.Client) {
	c.subMu.Lock()
	subs := make(map[string]QoS, len(c.subscriptions))
	for filter, qos := range c.subscriptions {
		subs[filter] = qos
	}
	c.subMu.Unlock()

	for filter, qos := range subs {
		token := client.Subscribe(filter, byte(qos), nil)
		if !token.WaitTimeout(defaultRestoreTimeout) {
			c.logWarn("Subscription restore unacknowledged", "topic", filter, "timeout", defaultRestoreTimeout)
			continue
		}
		if err := token.Error(); err != nil {
			c.logError("Subscription restore failed", "topic", filter, "error", err)
			continue
		}
		c.logInfo("Subscription restored", "topic", filter, "qos", int(qos))
	}
}

// handleConnectionFailure is the connection-failure hook.
func (c *Coordinator) handleConnectionFailure(err error) {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateFailed
	}
	c.mu.Unlock()

	c.logError("Lifecycle Connection Failure", "error", err)

	c.connected.Reject(fmt.Errorf("%w: %w", ErrConnectFailure, err))
}

// handleConnectionLost runs when an established session drops. The client
// library reconnects on its own; success fires again when it does.
func (c *Coordinator) handleConnectionLost(err error) {
	c.mu.Lock()
	if c.state == StateConnected {
		c.state = StateConnecting
	}
	c.mu.Unlock()

	c.logWarn("Connection lost", "error", err)
}

// handleStopped is the stopped hook.
func (c *Coordinator) handleStopped() {
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	c.logInfo("Lifecycle Stopped")

	c.stopped.Resolve(struct{}{})
}

// handlePublish is the publish-received hook. It converts the library
// message and recovers from handler panics so one bad message cannot take
// down the delivery goroutine.
func (c *Coordinator) handlePublish(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	if c.onPublish == nil {
		return
	}

	c.onPublish(Message{
		Topic:      msg.Topic(),
		Payload:    msg.Payload(),
		QoS:        QoS(msg.Qos()),
		Retained:   msg.Retained(),
		Duplicate:  msg.Duplicate(),
		MessageID:  msg.MessageID(),
		ReceivedAt: time.Now(),
	})
}

func (c *Coordinator) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Coordinator) logInfo(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (c *Coordinator) logWarn(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Coordinator) logError(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
