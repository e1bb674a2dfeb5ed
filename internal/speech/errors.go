package speech

import "errors"

// Domain-specific errors for speech synthesis.
var (
	// ErrIOWrite is returned when synthesized audio cannot be written to
	// local storage. The partial file is removed before returning.
	ErrIOWrite = errors.New("speech: writing audio failed")

	// ErrSynthesisFailed is returned when the text-to-speech call fails.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")

	// ErrEmptyText is returned when there is nothing to say.
	ErrEmptyText = errors.New("speech: text cannot be empty")
)
