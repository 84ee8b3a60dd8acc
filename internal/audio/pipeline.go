package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Pipeline resolves the configured input source and starts capture streams.
type Pipeline struct {
	input    string
	fallback string
	logger   *slog.Logger
}

// NewPipeline constructs a capture pipeline from input/fallback preferences.
func NewPipeline(input string, fallback string, logger *slog.Logger) *Pipeline {
	return &Pipeline{input: input, fallback: fallback, logger: logger}
}

// Start selects a device and opens its record stream. Selection warnings are
// logged, not fatal.
func (p *Pipeline) Start(ctx context.Context) (*Capture, error) {
	selection, err := SelectDevice(ctx, p.input, p.fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && p.logger != nil {
		p.logger.Warn(selection.Warning)
	}

	capture, err := StartCapture(ctx, selection.Device)
	if err != nil {
		return nil, err
	}

	if p.logger != nil {
		p.logger.Info("capture started", "device", DescribeDevice(selection.Device), "fallback", selection.Fallback)
	}
	return capture, nil
}

// DescribeDevice formats device metadata for logs and diagnostics.
func DescribeDevice(device Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
