// Package speech turns text into audio files with Amazon Polly.
//
// Requests are signed with the temporary credentials obtained through the
// IoT role alias (see package credentials). The synthesized stream is
// written to a fixed file in the platform temp directory; the stream is
// always closed and a partially written file is removed on failure.
//
// Announcer runs synthesis on its own goroutine so message callbacks can
// queue announcements without blocking the broker.
package speech
