package mqtt

import "errors"

// Domain-specific errors for the connection lifecycle and subscriptions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectTimeout is returned when the connection-success event does
	// not arrive within the caller's timeout.
	ErrConnectTimeout = errors.New("mqtt: connect timed out")

	// ErrConnectFailure is returned when the broker client reports a failed
	// connection attempt. It wraps the underlying transport or auth error.
	ErrConnectFailure = errors.New("mqtt: connection failed")

	// ErrStopTimeout is returned when the stopped event does not arrive in time.
	ErrStopTimeout = errors.New("mqtt: stop timed out")

	// ErrNotStarted is returned when waiting for a connection that was never started.
	ErrNotStarted = errors.New("mqtt: coordinator not started")

	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("mqtt: coordinator already started")

	// ErrNotRunning is returned when Stop is called without a live session.
	ErrNotRunning = errors.New("mqtt: coordinator not running")

	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrSubscribeTimeout is returned when the subscribe acknowledgement does not arrive in time.
	ErrSubscribeTimeout = errors.New("mqtt: subscribe timed out")

	// ErrSubscribeFailed is returned when the broker client reports a subscribe error.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrSubscribeRejected is returned when the broker refuses the subscription.
	ErrSubscribeRejected = errors.New("mqtt: subscription rejected by broker")

	// ErrUnsubscribeTimeout is returned when the unsubscribe acknowledgement does not arrive in time.
	ErrUnsubscribeTimeout = errors.New("mqtt: unsubscribe timed out")

	// ErrUnsubscribeFailed is returned when the broker client reports an unsubscribe error.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or malformed topic filter is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic filter")
)
