// Package session coordinates dictation lifecycle state, recognition streams,
// and the daemon command surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/voxkey/voxkey/internal/engine"
	"github.com/voxkey/voxkey/internal/fsm"
	"github.com/voxkey/voxkey/internal/transcript"
)

// Transcript is one recognized text update surfaced while a session runs.
type Transcript struct {
	Text  string
	Final bool
}

// DoneFunc receives the assembled transcript once per session, after all
// handles are released. A non-nil error explains an abnormal end.
type DoneFunc func(text string, err error)

// Session owns one capture-and-recognize lifecycle. The engine stream, the
// audio tap, and the cancel handle are installed and retracted as a unit so
// no partially started session can leak a device tap.
type Session struct {
	logger *slog.Logger
	engine engine.Engine
	mic    Microphone

	mu        sync.Mutex
	phase     fsm.State
	capture   Capture
	stream    engine.Stream
	cancel    context.CancelFunc
	sendDone  chan struct{}
	finalized bool
	segments  []string
	onEvent   func(Transcript)
	onDone    DoneFunc
}

// New constructs an idle session around an engine and a microphone.
func New(logger *slog.Logger, eng engine.Engine, mic Microphone) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger: logger,
		engine: eng,
		mic:    mic,
		phase:  fsm.StateIdle,
	}
}

// Phase returns the current lifecycle phase snapshot.
func (s *Session) Phase() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start checks engine availability, opens the recognition stream, starts the
// audio tap, and begins forwarding captured chunks. Availability failures
// return ErrEngineUnavailable before any device is touched. Start refuses to
// run while a previous session is still winding down.
func (s *Session) Start(ctx context.Context, onEvent func(Transcript), onDone DoneFunc) error {
	s.mu.Lock()
	if s.phase != fsm.StateIdle {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("session already running in phase %s", phase)
	}
	next, err := fsm.Transition(s.phase, fsm.EventStart)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.phase = next
	s.finalized = false
	s.segments = nil
	s.onEvent = onEvent
	s.onDone = onDone
	s.mu.Unlock()

	if !s.engine.Available(ctx) {
		s.abortStart()
		return ErrEngineUnavailable
	}

	// The session task outlives the start request: stopping is an explicit
	// EndAudio or Reset, not the caller's context.
	taskCtx, cancel := context.WithCancel(context.Background())

	stream, err := s.engine.Open(taskCtx, s.onRecognition)
	if err != nil {
		cancel()
		s.abortStart()
		if engine.IsUnauthorized(err) {
			return fmt.Errorf("%w: %w", ErrRecognitionNotAuthorized, err)
		}
		return fmt.Errorf("%w: %w", ErrEngineInit, err)
	}

	capture, err := s.mic.Start(taskCtx)
	if err != nil {
		_ = stream.Cancel()
		cancel()
		s.abortStart()
		return fmt.Errorf("%w: %w", ErrDeviceStart, err)
	}

	sendDone := make(chan struct{})

	s.mu.Lock()
	if s.finalized || s.phase != fsm.StateStarting {
		// Reset raced the start. Retract everything we just acquired.
		s.mu.Unlock()
		_ = capture.Stop()
		_ = stream.Cancel()
		cancel()
		return errors.New("session reset during start")
	}
	s.capture = capture
	s.stream = stream
	s.cancel = cancel
	s.sendDone = sendDone
	next, err = fsm.Transition(s.phase, fsm.EventReady)
	if err == nil {
		s.phase = next
	}
	s.mu.Unlock()

	go s.sendLoop(capture, stream, sendDone)
	return nil
}

// EndAudio stops the tap, drains buffered chunks to the stream, and closes
// the send side. Recognition results keep arriving until the stream's
// terminal callback completes the session. No-op outside the active phase.
func (s *Session) EndAudio() error {
	s.mu.Lock()
	if s.phase != fsm.StateActive {
		s.mu.Unlock()
		return nil
	}
	next, err := fsm.Transition(s.phase, fsm.EventStop)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.phase = next
	capture := s.capture
	stream := s.stream
	sendDone := s.sendDone
	s.mu.Unlock()

	if capture != nil {
		_ = capture.Stop()
	}
	if sendDone != nil {
		<-sendDone
	}
	if stream != nil {
		return stream.EndAudio()
	}
	return nil
}

// Reset tears down unconditionally from any phase without reporting a
// transcript. Safe to call when already idle.
func (s *Session) Reset() {
	s.teardown(nil, false)
}

// sendLoop forwards captured PCM to the stream until the tap closes.
func (s *Session) sendLoop(capture Capture, stream engine.Stream, done chan struct{}) {
	defer close(done)

	for chunk := range capture.Chunks() {
		if err := stream.SendAudio(chunk); err != nil {
			_ = capture.Stop()
			s.logger.Warn("audio send failed", "error", err)
			s.teardown(fmt.Errorf("send audio: %w", err), true)
			return
		}
	}
}

// onRecognition is the single engine callback. Results are forwarded in
// arrival order; a final result or a terminal callback finishes the session.
func (s *Session) onRecognition(result engine.Result, err error) {
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.teardown(nil, true)
			return
		}
		s.teardown(err, true)
		return
	}

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	onEvent := s.onEvent
	if result.Final {
		s.segments = transcript.Append(s.segments, result.Text)
	}
	s.mu.Unlock()

	if onEvent != nil && result.Text != "" {
		onEvent(Transcript{Text: result.Text, Final: result.Final})
	}

	// The engine finalizing an utterance ends the session; the user toggle
	// only signals end of audio.
	if result.Final {
		s.teardown(nil, true)
	}
}

// abortStart returns a failed start to idle without teardown side effects.
func (s *Session) abortStart() {
	s.mu.Lock()
	s.phase = fsm.StateIdle
	s.finalized = false
	s.segments = nil
	s.onEvent = nil
	s.onDone = nil
	s.mu.Unlock()
}

// teardown retracts all handles exactly once and returns to idle. The done
// callback fires only for the first caller and only when notify is set.
func (s *Session) teardown(cause error, notify bool) {
	s.mu.Lock()
	if s.finalized || s.phase == fsm.StateIdle {
		s.mu.Unlock()
		return
	}
	s.finalized = true

	capture := s.capture
	stream := s.stream
	cancel := s.cancel
	onDone := s.onDone
	text := transcript.Join(s.segments)

	s.capture = nil
	s.stream = nil
	s.cancel = nil
	s.sendDone = nil
	s.segments = nil
	s.onEvent = nil
	s.onDone = nil

	if next, err := fsm.Transition(s.phase, fsm.EventComplete); err == nil {
		s.phase = next
	} else {
		s.phase, _ = fsm.Transition(s.phase, fsm.EventReset)
	}
	s.mu.Unlock()

	if capture != nil {
		_ = capture.Stop()
	}
	if stream != nil {
		_ = stream.Cancel()
	}
	if cancel != nil {
		cancel()
	}

	if notify && onDone != nil {
		onDone(text, cause)
	}
}
