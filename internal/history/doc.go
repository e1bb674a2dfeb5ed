// Package history keeps a local record of relay runs and the messages
// each one received, in the SQLite database.
//
// A Run row is created before connecting and finished after the session
// stops. Deliveries are written by a Recorder, which is registered as a
// dispatch.Observer so that the broker callback never waits on disk I/O.
package history
