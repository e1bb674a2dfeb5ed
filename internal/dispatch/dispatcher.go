package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/chimp-relay/internal/actuator"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/mqtt"
)

// maxLoggedPayload caps how much of a payload is written to the log.
const maxLoggedPayload = 256

// Delivery is one received message as seen by observers.
type Delivery struct {
	// Seq is the 1-based position of the message in this run.
	Seq        int64
	Topic      string
	Payload    []byte
	QoS        mqtt.QoS
	Duplicate  bool
	ReceivedAt time.Time
}

// Observer is notified of every delivery.
//
// Observe runs on the broker client's delivery goroutine, so it must not
// block. Implementations hand work to their own goroutine.
type Observer interface {
	Observe(d Delivery)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(d Delivery)

// Observe calls f(d).
func (f ObserverFunc) Observe(d Delivery) { f(d) }

// Logger interface for dispatcher logging.
type Logger interface {
	Info(msg string, args ...any)
}

// Dispatcher is the publish-received callback for a run. It counts
// messages, blinks the indicator for each one and signals completion when
// the termination policy is first satisfied.
//
// Thread Safety:
//   - Handle may be called concurrently from any goroutine.
//   - The count is monotonic and keeps increasing after completion.
//   - Completion is signalled exactly once.
type Dispatcher struct {
	driver    actuator.Driver
	policy    TerminationPolicy
	blink     actuator.BlinkSpec
	observers []Observer
	log       Logger

	// filter, when set, drops messages whose topic it does not match.
	filter string

	count    atomic.Int64
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Dispatcher.
//
// Parameters:
//   - driver: Indicator light (possibly the unavailable variant)
//   - policy: When the run is complete
//   - blink: Pattern played per message
//   - log: Receives one line per message
//   - observers: Optional history, telemetry and announcement sinks
func New(driver actuator.Driver, policy TerminationPolicy, blink actuator.BlinkSpec, log Logger, observers ...Observer) *Dispatcher {
	return &Dispatcher{
		driver:    driver,
		policy:    policy,
		blink:     blink,
		observers: observers,
		log:       log,
		done:      make(chan struct{}),
	}
}

// SetTopicFilter restricts counting to topics matching filter. The broker
// only delivers subscribed topics, so this matters only when the client
// also receives messages for other subscriptions.
func (d *Dispatcher) SetTopicFilter(filter string) {
	d.filter = filter
}

// Handle processes one inbound message.
func (d *Dispatcher) Handle(msg mqtt.Message) {
	if d.filter != "" && !mqtt.TopicMatch(d.filter, msg.Topic) {
		return
	}

	n := d.count.Add(1)

	d.log.Info("Received message from topic",
		"topic", msg.Topic,
		"payload", truncate(msg.Payload),
		"count", n,
	)

	d.driver.Activate(d.blink)

	delivery := Delivery{
		Seq:        n,
		Topic:      msg.Topic,
		Payload:    msg.Payload,
		QoS:        msg.QoS,
		Duplicate:  msg.Duplicate,
		ReceivedAt: msg.ReceivedAt,
	}
	for _, o := range d.observers {
		o.Observe(delivery)
	}

	if d.policy.Satisfied(n) {
		d.doneOnce.Do(func() {
			d.log.Info("Message threshold reached", "count", n, "policy", d.policy.String())
			close(d.done)
		})
	}
}

// Count returns the number of messages handled so far.
func (d *Dispatcher) Count() int64 {
	return d.count.Load()
}

// Done is closed once the termination policy is satisfied.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the policy is satisfied, the timeout elapses or ctx
// ends. A timeout of zero or less waits without limit.
//
// Returns:
//   - count: Messages handled when Wait returned
//   - completed: Whether the policy was satisfied
func (d *Dispatcher) Wait(ctx context.Context, timeout time.Duration) (count int64, completed bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-d.done:
		return d.Count(), true
	case <-expired:
	case <-ctx.Done():
	}

	// Completion may race with the timer; prefer reporting it.
	select {
	case <-d.done:
		return d.Count(), true
	default:
		return d.Count(), false
	}
}

func truncate(payload []byte) string {
	if len(payload) <= maxLoggedPayload {
		return string(payload)
	}
	return string(payload[:maxLoggedPayload]) + "..."
}
