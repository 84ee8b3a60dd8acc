package session

import "context"

// Capture is the session-facing subset of a running audio tap.
type Capture interface {
	Chunks() <-chan []byte
	Stop() error
}

// Microphone opens capture taps on demand.
type Microphone interface {
	Start(context.Context) (Capture, error)
}

// MicrophoneFunc adapts a function to the Microphone interface.
type MicrophoneFunc func(context.Context) (Capture, error)

func (f MicrophoneFunc) Start(ctx context.Context) (Capture, error) {
	return f(ctx)
}

// Preflight runs diagnostic permission probes. Results are logged by the
// implementation; sessions never gate on them.
type Preflight interface {
	Check(context.Context)
}

// PreflightFunc adapts a function to the Preflight interface.
type PreflightFunc func(context.Context)

func (f PreflightFunc) Check(ctx context.Context) {
	f(ctx)
}
