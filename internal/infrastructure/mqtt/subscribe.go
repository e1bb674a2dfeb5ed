package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/chimp-relay/internal/pending"
)

// Subscriber issues subscribe and unsubscribe requests on an established
// session and blocks until the broker acknowledges them.
//
// Messages matching a subscription are delivered to the Coordinator's
// publish-received callback, not to a per-subscription handler.
// Acknowledged subscriptions are remembered by the Coordinator and re-sent
// after an automatic reconnect.
type Subscriber struct {
	coord *Coordinator
}

// Subscriber returns a Subscriber bound to this session.
func (c *Coordinator) Subscriber() *Subscriber {
	return &Subscriber{coord: c}
}

// Subscribe requests sub and waits for the acknowledgement.
//
// Parameters:
//   - ctx: Cancels the wait (the request itself is not withdrawn)
//   - sub: Topic filter and requested QoS
//   - timeout: Upper bound on the wait for the acknowledgement
//
// Returns:
//   - SubAck: Granted QoS for the filter
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, ErrSubscribeTimeout,
//     ErrSubscribeFailed or ErrSubscribeRejected
func (s *Subscriber) Subscribe(ctx context.Context, sub Subscription, timeout time.Duration) (SubAck, error) {
	if err := sub.Validate(); err != nil {
		return SubAck{}, err
	}

	client, err := s.coord.activeClient()
	if err != nil {
		return SubAck{}, err
	}

	s.coord.logInfo("Subscribing to topic", "topic", sub.TopicFilter, "qos", int(sub.QoS))

	// A nil callback routes matching messages to the default publish handler.
	token := client.Subscribe(sub.TopicFilter, byte(sub.QoS), nil)

	op := pending.New[SubAck]()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			op.Reject(fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, sub.TopicFilter, err))
			return
		}

		granted, ok := grantedQoS(token, sub.TopicFilter)
		if !ok {
			granted = byte(sub.QoS)
		}
		if granted == subackFailure {
			op.Reject(fmt.Errorf("%w: %s", ErrSubscribeRejected, sub.TopicFilter))
			return
		}

		op.Resolve(SubAck{
			TopicFilter:  sub.TopicFilter,
			RequestedQoS: sub.QoS,
			GrantedQoS:   QoS(granted),
		})
	}()

	ack, err := op.Wait(ctx, timeout)
	if errors.Is(err, pending.ErrTimeout) {
		return SubAck{}, fmt.Errorf("%w: %s after %v", ErrSubscribeTimeout, sub.TopicFilter, timeout)
	}
	if err != nil {
		return SubAck{}, err
	}

	s.coord.trackSubscription(Subscription{TopicFilter: sub.TopicFilter, QoS: sub.QoS})
	s.coord.logInfo("Subscribed", "topic", ack.TopicFilter, "granted_qos", int(ack.GrantedQoS))
	return ack, nil
}

// Unsubscribe withdraws filter and waits for the acknowledgement.
//
// Returns:
//   - UnsubAck: Echo of the withdrawn filter
//   - error: ErrInvalidTopic, ErrNotConnected, ErrUnsubscribeTimeout or ErrUnsubscribeFailed
func (s *Subscriber) Unsubscribe(ctx context.Context, filter string, timeout time.Duration) (UnsubAck, error) {
	if err := ValidateTopicFilter(filter); err != nil {
		return UnsubAck{}, err
	}

	client, err := s.coord.activeClient()
	if err != nil {
		return UnsubAck{}, err
	}

	s.coord.logInfo("Unsubscribing from topic", "topic", filter)

	token := client.Unsubscribe(filter)

	op := pending.New[UnsubAck]()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			op.Reject(fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, filter, err))
			return
		}
		op.Resolve(UnsubAck{TopicFilter: filter})
	}()

	ack, err := op.Wait(ctx, timeout)
	if errors.Is(err, pending.ErrTimeout) {
		return UnsubAck{}, fmt.Errorf("%w: %s after %v", ErrUnsubscribeTimeout, filter, timeout)
	}
	if err != nil {
		return UnsubAck{}, err
	}

	s.coord.untrackSubscription(filter)
	return ack, nil
}

// grantedQoS reads the granted level from a subscribe token when the
// concrete token type exposes it.
func grantedQoS(token pahomqtt.Token, filter string) (byte, bool) {
	st, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return 0, false
	}
	granted, ok := st.Result()[filter]
	return granted, ok
}
