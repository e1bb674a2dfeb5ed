// Package relay runs one notification session end to end.
//
// Run wires the collaborators (indicator, speech, history, telemetry) to
// the message dispatcher, then drives the broker session through its
// lifecycle one blocking step at a time. Each step has its own timeout;
// all failures except the message-wait timeout end the run with an error.
package relay
