// Package mqtttest provides an in-memory stand-in for the paho MQTT client,
// for tests that drive the lifecycle callbacks without a broker.
package mqtttest

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// ErrRefused is the default connect error of a client in ConnectFails mode.
// It is not a dial error, so the Coordinator does not retry it.
var ErrRefused = errors.New("connection refused: not authorised")

// ErrUnreachable is the connect error for a broker that cannot be dialled,
// shaped the way the client library reports it.
var ErrUnreachable = fmt.Errorf("%w : %w", packets.ErrorNetworkError,
	&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})

// Token is a pahomqtt.Token completed by the fake.
type Token struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewToken returns an incomplete token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Complete finishes the token with err. Later calls are ignored.
func (t *Token) Complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Wait implements pahomqtt.Token.
func (t *Token) Wait() bool {
	<-t.done
	return true
}

// WaitTimeout implements pahomqtt.Token.
func (t *Token) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

// Done implements pahomqtt.Token.
func (t *Token) Done() <-chan struct{} { return t.done }

// Error implements pahomqtt.Token.
func (t *Token) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// ConnectMode selects how Client answers Connect.
type ConnectMode int

// Connect modes.
const (
	// ConnectSucceeds fires OnConnect and completes the token.
	ConnectSucceeds ConnectMode = iota
	// ConnectFails completes the token with ConnectErr.
	ConnectFails
	// ConnectHangs never answers.
	ConnectHangs
	// ConnectUnreachable fails every attempt with ErrUnreachable.
	ConnectUnreachable
)

// Client is a fake pahomqtt.Client. It invokes the handlers registered on
// the options it was built with, on its own goroutines, like the real one.
//
// Configure the exported fields before the client is used.
type Client struct {
	Mode       ConnectMode
	ConnectErr error

	// DialFailures makes the first attempts fail with ErrUnreachable
	// before Mode applies.
	DialFailures int

	// SubscribeErr fails every subscribe.
	SubscribeErr error
	// HangSubscribe and HangUnsubscribe leave the tokens incomplete.
	HangSubscribe   bool
	HangUnsubscribe bool

	// OnSubscribe runs after a successful subscribe acknowledgement.
	OnSubscribe func(c *Client, topic string)

	opts *pahomqtt.ClientOptions

	mu          sync.Mutex
	connected   bool
	subscribed  map[string]byte
	subscribes  int
	unsubscribe []string
	disconnects int
	quiesce     uint
	connects    int
}

// NewClient returns a fake in the given mode.
func NewClient(mode ConnectMode) *Client {
	return &Client{
		Mode:       mode,
		ConnectErr: ErrRefused,
		subscribed: make(map[string]byte),
	}
}

// Factory returns a client factory that hands out c.
func (c *Client) Factory() func(*pahomqtt.ClientOptions) pahomqtt.Client {
	return func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		c.mu.Lock()
		c.opts = opts
		c.mu.Unlock()
		return c
	}
}

func (c *Client) options() *pahomqtt.ClientOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// IsConnected implements pahomqtt.Client.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// IsConnectionOpen implements pahomqtt.Client.
func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

// Connect implements pahomqtt.Client.
func (c *Client) Connect() pahomqtt.Token {
	token := NewToken()

	c.mu.Lock()
	c.connects++
	unreachable := c.Mode == ConnectUnreachable || c.connects <= c.DialFailures
	c.mu.Unlock()

	if unreachable {
		go token.Complete(ErrUnreachable)
		return token
	}

	switch c.Mode {
	case ConnectSucceeds:
		go func() {
			c.setConnected(true)
			if h := c.options().OnConnect; h != nil {
				h(c)
			}
			token.Complete(nil)
		}()
	case ConnectFails:
		go token.Complete(c.ConnectErr)
	case ConnectHangs:
	}
	return token
}

// Disconnect implements pahomqtt.Client.
func (c *Client) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	c.quiesce = quiesce
}

// Publish implements pahomqtt.Client. Messages are not looped back.
func (c *Client) Publish(string, byte, bool, interface{}) pahomqtt.Token {
	token := NewToken()
	token.Complete(nil)
	return token
}

// Subscribe implements pahomqtt.Client.
func (c *Client) Subscribe(topic string, qos byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	token := NewToken()

	c.mu.Lock()
	c.subscribes++
	c.mu.Unlock()

	switch {
	case c.HangSubscribe:
		return token
	case c.SubscribeErr != nil:
		go token.Complete(c.SubscribeErr)
		return token
	}

	c.mu.Lock()
	c.subscribed[topic] = qos
	c.mu.Unlock()

	go func() {
		token.Complete(nil)
		if c.OnSubscribe != nil {
			c.OnSubscribe(c, topic)
		}
	}()
	return token
}

// SubscribeMultiple implements pahomqtt.Client.
func (c *Client) SubscribeMultiple(filters map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	for topic, qos := range filters {
		c.subscribed[topic] = qos
	}
	c.subscribes++
	c.mu.Unlock()

	token := NewToken()
	token.Complete(nil)
	return token
}

// Unsubscribe implements pahomqtt.Client.
func (c *Client) Unsubscribe(topics ...string) pahomqtt.Token {
	token := NewToken()
	if c.HangUnsubscribe {
		return token
	}

	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subscribed, topic)
		c.unsubscribe = append(c.unsubscribe, topic)
	}
	c.mu.Unlock()

	go token.Complete(nil)
	return token
}

// AddRoute implements pahomqtt.Client.
func (c *Client) AddRoute(string, pahomqtt.MessageHandler) {}

// OptionsReader implements pahomqtt.Client.
func (c *Client) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// Deliver simulates an inbound publish through the default handler.
func (c *Client) Deliver(topic string, payload []byte) {
	c.options().DefaultPublishHandler(c, Message{
		TopicName: topic,
		Body:      payload,
		QoSLevel:  1,
	})
}

// DeliverMessage passes msg to the default handler.
func (c *Client) DeliverMessage(msg pahomqtt.Message) {
	c.options().DefaultPublishHandler(c, msg)
}

// DropConnection simulates a network drop.
func (c *Client) DropConnection(err error) {
	c.setConnected(false)
	c.options().OnConnectionLost(c, err)
}

// Reconnect simulates a successful automatic reconnect.
func (c *Client) Reconnect() {
	c.setConnected(true)
	c.options().OnConnect(c)
}

// Subscription returns the QoS a topic was subscribed with.
func (c *Client) Subscription(topic string) (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qos, ok := c.subscribed[topic]
	return qos, ok
}

// Connects returns how many connect attempts were made.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Subscribes returns how many subscribe requests were made.
func (c *Client) Subscribes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribes
}

// Unsubscribed returns the topics withdrawn so far.
func (c *Client) Unsubscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribe...)
}

// Disconnects returns how many times Disconnect was called and the last
// quiesce argument.
func (c *Client) Disconnects() (count int, quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects, c.quiesce
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Message implements pahomqtt.Message.
type Message struct {
	TopicName string
	Body      []byte
	QoSLevel  byte
	ID        uint16
	Dup       bool
	Retain    bool
}

// Duplicate implements pahomqtt.Message.
func (m Message) Duplicate() bool { return m.Dup }

// Qos implements pahomqtt.Message.
func (m Message) Qos() byte { return m.QoSLevel }

// Retained implements pahomqtt.Message.
func (m Message) Retained() bool { return m.Retain }

// Topic implements pahomqtt.Message.
func (m Message) Topic() string { return m.TopicName }

// MessageID implements pahomqtt.Message.
func (m Message) MessageID() uint16 { return m.ID }

// Payload implements pahomqtt.Message.
func (m Message) Payload() []byte { return m.Body }

// Ack implements pahomqtt.Message.
func (m Message) Ack() {}
