// Package dispatch turns received broker messages into indicator blinks
// and tells the run when enough messages have arrived.
//
// The Dispatcher's Handle method is registered as the session's
// publish-received callback. Each call increments an atomic counter,
// activates the indicator, notifies observers and then checks the
// termination policy. The completion channel closes the first time the
// policy is satisfied; messages arriving afterwards are still counted
// and blinked.
package dispatch
