// Package engine abstracts the streaming speech recognition backend.
package engine

import "context"

// Result is one recognition update from the backend.
type Result struct {
	Text  string
	Final bool
}

// Callback receives recognition results and the stream's terminal condition.
//
// Each recognized result arrives as (Result, nil). Exactly one terminal
// callback follows: io.EOF for a clean close, any other error for failure.
type Callback func(Result, error)

// Stream is one active recognition stream.
type Stream interface {
	// SendAudio forwards one chunk of 16kHz mono s16 PCM.
	SendAudio(chunk []byte) error
	// EndAudio closes the send side. Pending results still arrive through
	// the callback after EndAudio returns.
	EndAudio() error
	// Cancel aborts the stream and releases its resources.
	Cancel() error
}

// Engine opens recognition streams against a configured backend.
type Engine interface {
	// Available reports whether the backend is reachable right now.
	Available(ctx context.Context) bool
	// Open establishes a stream and begins delivering results to cb.
	Open(ctx context.Context, cb Callback) (Stream, error)
}
