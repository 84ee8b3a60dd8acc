// Package app wires configuration, the dictation daemon, and client commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxkey/voxkey/internal/audio"
	"github.com/voxkey/voxkey/internal/cli"
	"github.com/voxkey/voxkey/internal/config"
	"github.com/voxkey/voxkey/internal/doctor"
	"github.com/voxkey/voxkey/internal/engine"
	"github.com/voxkey/voxkey/internal/ipc"
	"github.com/voxkey/voxkey/internal/logging"
	"github.com/voxkey/voxkey/internal/notify"
	"github.com/voxkey/voxkey/internal/output"
	"github.com/voxkey/voxkey/internal/permission"
	"github.com/voxkey/voxkey/internal/session"
	"github.com/voxkey/voxkey/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("voxkey"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("voxkey"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	// Pure client commands never need config or logging setup.
	switch parsed.Command {
	case cli.CommandToggle:
		return r.forwardOrFail(ctx, "toggle")
	case cli.CommandStop:
		return r.forwardOrFail(ctx, "stop")
	case cli.CommandReset:
		return r.forwardOrFail(ctx, "reset")
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger, logRuntime.Path)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "not running")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: voxkey daemon is not running (start it with `voxkey run`)")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRun owns the daemon lifecycle: socket, controller loop, IPC server,
// and the event consumer that applies notifications and clipboard commits.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger, logPath string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: voxkey daemon already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	eng, debugClose, err := buildEngine(cfg, logPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if debugClose != nil {
		defer debugClose()
	}

	pipe := audio.NewPipeline(cfg.Audio.Input, cfg.Audio.Fallback, logger)
	mic := pipelineMicrophone(pipe)

	gate := permission.NewGate(logger,
		func(ctx context.Context) bool { return eng.Available(ctx) },
		func(ctx context.Context) bool {
			_, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
			return err == nil
		},
	)

	sess := session.New(logger, eng, mic)
	controller := session.NewController(logger, sess, gate)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enable {
		notifier = notify.NewDesktop(cfg.Notify, logger)
	}
	var committer *output.Committer
	if cfg.Clipboard.Enable {
		committer = output.NewCommitter(cfg, logger)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	go r.consumeEvents(serverCtx, controller, notifier, committer, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	logger.Info("daemon started", "socket", socketPath, "endpoint", cfg.Engine.Endpoint)
	fmt.Fprintf(r.Stdout, "voxkey daemon listening on %s\n", socketPath)

	runErr := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	logger.Info("daemon stopped")
	return 0
}

// consumeEvents applies controller events to the desktop and the clipboard.
func (r Runner) consumeEvents(
	ctx context.Context,
	controller *session.Controller,
	notifier notify.Notifier,
	committer *output.Committer,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-controller.Events():
			switch ev.Kind {
			case session.EventState:
				if ev.Recording {
					notifier.Recording(ctx)
				} else {
					notifier.Idle(ctx)
				}
			case session.EventTranscript:
				logger.Info("transcript", "text", ev.Text, "final", ev.Final)
			case session.EventDone:
				notifier.Transcribed(ctx, ev.Text)
				if committer != nil {
					if err := committer.Commit(ctx, ev.Text); err != nil {
						logger.Error("clipboard commit failed", "error", err.Error())
						notifier.Error(ctx, "Clipboard update failed")
					}
				}
			case session.EventError:
				notifier.Error(ctx, userFacingError(ev.Err))
			}
		}
	}
}

// buildEngine constructs the recognition engine, including the optional raw
// response dump next to the log file.
func buildEngine(cfg config.Config, logPath string) (*engine.Google, func(), error) {
	engineCfg := engine.GoogleConfig{
		Endpoint:             cfg.Engine.Endpoint,
		LanguageCode:         cfg.Engine.LanguageCode,
		Model:                cfg.Engine.Model,
		AutomaticPunctuation: cfg.Engine.AutomaticPunctuation,
		Insecure:             cfg.Engine.Insecure,
		DialTimeout:          time.Duration(cfg.Engine.DialTimeoutMS) * time.Millisecond,
	}

	var closeSink func()
	if cfg.Debug.EnableResponseDump && logPath != "" {
		dumpPath := filepath.Join(filepath.Dir(logPath), "responses.jsonl")
		f, err := os.OpenFile(dumpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open response dump %q: %w", dumpPath, err)
		}
		engineCfg.DebugResponseSink = f
		closeSink = func() { _ = f.Close() }
	}

	eng, err := engine.NewGoogle(engineCfg)
	if err != nil {
		if closeSink != nil {
			closeSink()
		}
		return nil, nil, err
	}
	return eng, closeSink, nil
}

// pipelineMicrophone adapts the capture pipeline to the session microphone
// interface. Start failures pass through untouched so the session reports
// them as device-start failures; authorization errors are not inferred here.
func pipelineMicrophone(pipe *audio.Pipeline) session.MicrophoneFunc {
	return func(ctx context.Context) (session.Capture, error) {
		capture, err := pipe.Start(ctx)
		if err != nil {
			return nil, err
		}
		return capture, nil
	}
}

// userFacingError maps session errors to short notification text.
func userFacingError(err error) string {
	switch {
	case errors.Is(err, session.ErrEngineUnavailable):
		return "Speech engine unavailable"
	case errors.Is(err, session.ErrEmptyTranscript):
		return "No speech detected"
	case errors.Is(err, session.ErrRecordingNotPermitted), errors.Is(err, session.ErrDeviceStart):
		return "Unable to start recording"
	case errors.Is(err, session.ErrRecognitionNotAuthorized):
		return "Speech recognition not authorized"
	case errors.Is(err, session.ErrEngineInit):
		return "Speech recognition failed to start"
	default:
		return "Dictation failed"
	}
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsSocketMissing(err) || ipc.IsConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
