package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voxkey/voxkey/internal/engine"
	"github.com/voxkey/voxkey/internal/fsm"
	"github.com/voxkey/voxkey/internal/ipc"
)

func startController(t *testing.T, eng *fakeEngine, mic *fakeMic) (*Controller, context.CancelFunc) {
	t.Helper()
	ctrl := NewController(nil, newTestSession(eng, mic), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()
	return ctrl, cancel
}

func waitForRecording(t *testing.T, ctrl *Controller, desired bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.Recording() == desired {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for recording=%v", desired)
}

func nextEvent(t *testing.T, ctrl *Controller) Event {
	t.Helper()
	select {
	case ev := <-ctrl.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for controller event")
		return Event{}
	}
}

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	ctrl := NewController(nil, newTestSession(&fakeEngine{stream: &fakeStream{}}, &fakeMic{capture: newFakeCapture(1)}), nil)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)

	unknown := ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestHandleStopRejectedWhenIdle(t *testing.T) {
	ctrl := NewController(nil, newTestSession(&fakeEngine{stream: &fakeStream{}}, &fakeMic{capture: newFakeCapture(1)}), nil)

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "not recording")
}

func TestEnqueueReportsAlreadyQueued(t *testing.T) {
	ctrl := NewController(nil, newTestSession(&fakeEngine{stream: &fakeStream{}}, &fakeMic{capture: newFakeCapture(1)}), nil)

	ctrl.commands <- commandToggle
	resp := ctrl.enqueue(commandToggle, "toggle")
	require.True(t, resp.OK)
	require.Equal(t, "toggle already queued", resp.Message)
}

func TestToggleStartsThenStopsOneSession(t *testing.T) {
	stream := &fakeStream{}
	eng := &fakeEngine{stream: stream}
	capture := newFakeCapture(4)
	mic := &fakeMic{capture: capture}
	ctrl, cancel := startController(t, eng, mic)
	defer cancel()

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)
	waitForRecording(t, ctrl, true)
	require.Equal(t, int32(1), eng.opens.Load())

	started := nextEvent(t, ctrl)
	require.Equal(t, EventState, started.Kind)
	require.True(t, started.Recording)

	resp = ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)

	deadline := time.Now().Add(2 * time.Second)
	for !stream.endedCalled() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, stream.endedCalled())

	eng.emit(t, engine.Result{Text: "hello from voxkey", Final: true}, nil)
	eng.emit(t, engine.Result{}, io.EOF)
	waitForRecording(t, ctrl, false)

	transcriptEv := nextEvent(t, ctrl)
	require.Equal(t, EventTranscript, transcriptEv.Kind)
	require.Equal(t, "hello from voxkey", transcriptEv.Text)

	doneEv := nextEvent(t, ctrl)
	require.Equal(t, EventDone, doneEv.Kind)
	require.Equal(t, "hello from voxkey", doneEv.Text)

	stopped := nextEvent(t, ctrl)
	require.Equal(t, EventState, stopped.Kind)
	require.False(t, stopped.Recording)

	// Still exactly one engine open across the whole toggle cycle.
	require.Equal(t, int32(1), eng.opens.Load())
}

func TestRapidTogglesNeverOverlapSessions(t *testing.T) {
	stream := &fakeStream{}
	eng := &fakeEngine{stream: stream}
	mic := &fakeMic{capture: newFakeCapture(4)}
	ctrl, cancel := startController(t, eng, mic)
	defer cancel()

	first := ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, first.OK)
	second := ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, second.OK)

	deadline := time.Now().Add(2 * time.Second)
	for !stream.endedCalled() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, stream.endedCalled())
	require.Equal(t, int32(1), eng.opens.Load())
	require.Equal(t, int32(1), mic.starts.Load())
}

func TestStartFailurePublishesError(t *testing.T) {
	eng := &fakeEngine{unavailable: true, stream: &fakeStream{}}
	mic := &fakeMic{capture: newFakeCapture(1)}
	ctrl, cancel := startController(t, eng, mic)
	defer cancel()

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)

	ev := nextEvent(t, ctrl)
	require.Equal(t, EventError, ev.Kind)
	require.ErrorIs(t, ev.Err, ErrEngineUnavailable)
	require.False(t, ctrl.Recording())
	require.Equal(t, int32(0), mic.starts.Load())
}

func TestFinalResultEndsRecordingWithoutToggle(t *testing.T) {
	stream := &fakeStream{}
	eng := &fakeEngine{stream: stream}
	capture := newFakeCapture(4)
	mic := &fakeMic{capture: capture}
	ctrl, cancel := startController(t, eng, mic)
	defer cancel()

	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"}).OK)
	waitForRecording(t, ctrl, true)
	require.Equal(t, EventState, nextEvent(t, ctrl).Kind)

	eng.emit(t, engine.Result{Text: "short note", Final: false}, nil)
	eng.emit(t, engine.Result{Text: "short note taken", Final: true}, nil)
	waitForRecording(t, ctrl, false)

	require.Equal(t, EventTranscript, nextEvent(t, ctrl).Kind)
	finalEv := nextEvent(t, ctrl)
	require.Equal(t, EventTranscript, finalEv.Kind)
	require.True(t, finalEv.Final)

	doneEv := nextEvent(t, ctrl)
	require.Equal(t, EventDone, doneEv.Kind)
	require.Equal(t, "short note taken", doneEv.Text)
	require.Equal(t, EventState, nextEvent(t, ctrl).Kind)
	require.GreaterOrEqual(t, capture.stops.Load(), int32(1))
}

func TestEmptyTranscriptReportsError(t *testing.T) {
	stream := &fakeStream{}
	eng := &fakeEngine{stream: stream}
	mic := &fakeMic{capture: newFakeCapture(4)}
	ctrl, cancel := startController(t, eng, mic)
	defer cancel()

	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"}).OK)
	waitForRecording(t, ctrl, true)
	require.Equal(t, EventState, nextEvent(t, ctrl).Kind)

	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"}).OK)
	deadline := time.Now().Add(2 * time.Second)
	for !stream.endedCalled() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	eng.emit(t, engine.Result{}, io.EOF)
	waitForRecording(t, ctrl, false)

	ev := nextEvent(t, ctrl)
	require.Equal(t, EventError, ev.Kind)
	require.ErrorIs(t, ev.Err, ErrEmptyTranscript)
}

func TestResetReturnsToIdleFromRecording(t *testing.T) {
	stream := &fakeStream{}
	eng := &fakeEngine{stream: stream}
	capture := newFakeCapture(4)
	mic := &fakeMic{capture: capture}
	ctrl, cancel := startController(t, eng, mic)
	defer cancel()

	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"}).OK)
	waitForRecording(t, ctrl, true)

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "reset"})
	require.True(t, resp.OK)
	waitForRecording(t, ctrl, false)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.GreaterOrEqual(t, capture.stops.Load(), int32(1))
	require.Equal(t, int32(1), stream.cancelled.Load())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	eng := &fakeEngine{stream: &fakeStream{}}
	mic := &fakeMic{capture: newFakeCapture(1)}
	ctrl := NewController(nil, newTestSession(eng, mic), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit on context cancel")
	}
}

func TestPreflightRunsOnce(t *testing.T) {
	checked := make(chan struct{}, 1)
	ctrl := NewController(
		nil,
		newTestSession(&fakeEngine{stream: &fakeStream{}}, &fakeMic{capture: newFakeCapture(1)}),
		PreflightFunc(func(context.Context) { checked <- struct{}{} }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ctrl.Run(ctx) }()

	select {
	case <-checked:
	case <-time.After(2 * time.Second):
		t.Fatal("preflight never ran")
	}
}
