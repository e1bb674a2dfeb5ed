package mqtt

import (
	"fmt"
	"time"
)

// ConnectionState is the lifecycle state of a Coordinator.
type ConnectionState int32

// Connection states. Transitions are driven by broker callbacks, except
// Idle→Connecting (Start) and Connected→Stopping (Stop).
const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateStopping
	StateStopped
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// QoS is an MQTT delivery guarantee.
type QoS byte

// QoS levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// subackFailure is the granted-QoS value a broker uses to refuse a filter.
const subackFailure = 0x80

// ParseQoS converts a configured integer to a QoS.
func ParseQoS(v int) (QoS, error) {
	if v < int(AtMostOnce) || v > int(ExactlyOnce) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQoS, v)
	}
	return QoS(v), nil
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	case ExactlyOnce:
		return "exactly-once"
	default:
		return fmt.Sprintf("invalid(%d)", byte(q))
	}
}

// Subscription is one topic filter and its requested QoS.
// It is immutable once sent.
type Subscription struct {
	TopicFilter string
	QoS         QoS
}

// Validate checks the filter and QoS before the request is sent.
func (s Subscription) Validate() error {
	if s.QoS > ExactlyOnce {
		return ErrInvalidQoS
	}
	return ValidateTopicFilter(s.TopicFilter)
}

// SubAck is the broker's answer to a subscribe request.
type SubAck struct {
	TopicFilter  string
	RequestedQoS QoS

	// GrantedQoS is the level the broker granted. It equals RequestedQoS
	// when the client library does not expose the granted level.
	GrantedQoS QoS
}

// UnsubAck is the broker's answer to an unsubscribe request.
type UnsubAck struct {
	TopicFilter string
}

// ConnectionInfo describes an established session.
type ConnectionInfo struct {
	Broker      string
	ClientID    string
	ConnectedAt time.Time
}

// Message is one inbound publish.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        QoS
	Retained   bool
	Duplicate  bool
	MessageID  uint16
	ReceivedAt time.Time
}

// MessageHandler is the publish-received callback.
//
// Handlers run on the broker client's delivery goroutine and must return
// quickly; blocking stalls all further deliveries and acknowledgements.
type MessageHandler func(msg Message)
