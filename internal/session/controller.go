package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxkey/voxkey/internal/ipc"
)

type command int

const (
	commandToggle command = iota + 1
	commandStop
	commandReset
)

// EventKind classifies controller events consumed by the presentation layer.
type EventKind string

const (
	// EventState reports a recording state change.
	EventState EventKind = "state"
	// EventTranscript reports one recognized text update.
	EventTranscript EventKind = "transcript"
	// EventDone reports the assembled transcript of a completed session.
	EventDone EventKind = "done"
	// EventError reports a session failure.
	EventError EventKind = "error"
)

// Event is one controller notification. Text carries transcript content for
// EventTranscript and EventDone; Err is set for EventError.
type Event struct {
	Kind      EventKind
	Recording bool
	Text      string
	Final     bool
	Err       error
}

type completion struct {
	text string
	err  error
}

// Controller serializes toggle/stop/reset commands onto one run loop and owns
// the recording flag. Commands arriving while one is in flight queue up and
// run in order, so rapid toggles alternate start/stop and never overlap.
type Controller struct {
	logger    *slog.Logger
	session   *Session
	preflight Preflight

	mu        sync.RWMutex
	recording bool

	commands    chan command
	completions chan completion
	events      chan Event
}

// NewController wires a controller around one session. The preflight probe
// may be nil.
func NewController(logger *slog.Logger, sess *Session, preflight Preflight) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		logger:      logger,
		session:     sess,
		preflight:   preflight,
		commands:    make(chan command, 1),
		completions: make(chan completion, 4),
		events:      make(chan Event, 16),
	}
}

// Recording reports whether a session is currently in flight.
func (c *Controller) Recording() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recording
}

// Events returns the notification stream. Slow consumers lose events rather
// than stalling the run loop.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Run executes the command loop until ctx is cancelled. The permission
// preflight fires once in the background and never gates dictation.
func (c *Controller) Run(ctx context.Context) error {
	if c.preflight != nil {
		go c.preflight.Check(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			c.session.Reset()
			c.setRecording(false)
			return ctx.Err()
		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)
		case done := <-c.completions:
			c.finishSession(done)
		}
	}
}

// Handle serves IPC commands against the run loop.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: c.stateString(), Message: "status"}
	case "toggle":
		return c.enqueue(commandToggle, "toggle")
	case "stop":
		if !c.Recording() {
			return ipc.Response{OK: false, State: c.stateString(), Error: "not recording"}
		}
		return c.enqueue(commandStop, "stop")
	case "reset":
		return c.enqueue(commandReset, "reset")
	default:
		return ipc.Response{OK: false, State: c.stateString(), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// enqueue posts a command without blocking the IPC handler. A full queue
// means one command is already pending; the caller's intent is preserved.
func (c *Controller) enqueue(cmd command, source string) ipc.Response {
	select {
	case c.commands <- cmd:
		return ipc.Response{OK: true, State: c.stateString(), Message: source + " requested"}
	default:
		return ipc.Response{OK: true, State: c.stateString(), Message: source + " already queued"}
	}
}

func (c *Controller) stateString() string {
	return string(c.session.Phase())
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	switch cmd {
	case commandToggle:
		if c.Recording() {
			c.stopRecording()
			return
		}
		c.startRecording(ctx)
	case commandStop:
		if c.Recording() {
			c.stopRecording()
		}
	case commandReset:
		c.session.Reset()
		c.setRecording(false)
		c.publish(Event{Kind: EventState, Recording: false})
		c.logger.Info("session reset")
	}
}

func (c *Controller) startRecording(ctx context.Context) {
	err := c.session.Start(ctx, c.onTranscript, c.onDone)
	if err != nil {
		c.logger.Error("session start failed", "error", err)
		c.publish(Event{Kind: EventError, Err: err})
		return
	}
	c.setRecording(true)
	c.publish(Event{Kind: EventState, Recording: true})
	c.logger.Info("recording started")
}

func (c *Controller) stopRecording() {
	if err := c.session.EndAudio(); err != nil {
		c.logger.Warn("end audio failed", "error", err)
	}
	c.logger.Info("recording stopping", "phase", c.stateString())
}

// onTranscript runs on the engine callback goroutine.
func (c *Controller) onTranscript(tr Transcript) {
	c.publish(Event{Kind: EventTranscript, Recording: true, Text: tr.Text, Final: tr.Final})
}

// onDone runs on the engine callback goroutine; completion handling happens
// back on the run loop.
func (c *Controller) onDone(text string, err error) {
	select {
	case c.completions <- completion{text: text, err: err}:
	default:
		c.logger.Warn("completion dropped", "error", err)
	}
}

func (c *Controller) finishSession(done completion) {
	if !c.Recording() {
		c.logger.Debug("completion for inactive session", "error", done.err)
	}
	c.setRecording(false)

	if done.err != nil {
		c.logger.Error("session failed", "error", done.err)
		c.publish(Event{Kind: EventError, Err: done.err})
		c.publish(Event{Kind: EventState, Recording: false})
		return
	}

	text := strings.TrimSpace(done.text)
	if text == "" {
		c.logger.Info("session complete", "transcript", "")
		c.publish(Event{Kind: EventError, Err: ErrEmptyTranscript})
		c.publish(Event{Kind: EventState, Recording: false})
		return
	}

	c.logger.Info("session complete", "chars", len(text))
	c.publish(Event{Kind: EventDone, Text: text, Final: true})
	c.publish(Event{Kind: EventState, Recording: false})
}

func (c *Controller) setRecording(v bool) {
	c.mu.Lock()
	c.recording = v
	c.mu.Unlock()
}

// publish delivers an event without blocking the run loop.
func (c *Controller) publish(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event dropped", "kind", string(ev.Kind))
	}
}
