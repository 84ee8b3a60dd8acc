// Package permission probes recognition and capture authorization up front so
// denials surface in logs before the first dictation attempt. Probes are
// diagnostic only; sessions never wait on them.
package permission

import (
	"context"
	"log/slog"
	"sync"
)

// Probe answers one authorization question.
type Probe func(context.Context) bool

// Status is the combined outcome of both authorization probes.
type Status struct {
	SpeechRecognition bool
	Microphone        bool
}

// Granted reports whether every probe passed.
func (s Status) Granted() bool {
	return s.SpeechRecognition && s.Microphone
}

// Gate queries speech and microphone authorization concurrently.
type Gate struct {
	logger *slog.Logger
	speech Probe
	record Probe
}

// NewGate builds a gate from the two probes. Nil probes report denied.
func NewGate(logger *slog.Logger, speech Probe, record Probe) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{logger: logger, speech: speech, record: record}
}

// Status runs both probes concurrently and collects their answers.
func (g *Gate) Status(ctx context.Context) Status {
	var status Status
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		status.SpeechRecognition = run(ctx, g.speech)
	}()
	go func() {
		defer wg.Done()
		status.Microphone = run(ctx, g.record)
	}()
	wg.Wait()

	return status
}

// Check logs probe outcomes. It satisfies the session preflight contract.
func (g *Gate) Check(ctx context.Context) {
	status := g.Status(ctx)
	if status.Granted() {
		g.logger.Info("permission preflight passed")
		return
	}
	if !status.SpeechRecognition {
		g.logger.Warn("speech recognition not authorized; dictation will fail at start")
	}
	if !status.Microphone {
		g.logger.Warn("microphone capture not permitted; dictation will fail at start")
	}
}

func run(ctx context.Context, probe Probe) bool {
	if probe == nil {
		return false
	}
	return probe(ctx)
}
