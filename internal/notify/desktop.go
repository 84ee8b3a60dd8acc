package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/voxkey/voxkey/internal/config"
)

const transcriptTimeoutMS = 4000

// Desktop posts freedesktop notifications over DBus via busctl. One
// notification ID is reused so state changes replace the bubble instead of
// stacking.
type Desktop struct {
	logger       *slog.Logger
	appName      string
	errorTimeout int

	mu     sync.Mutex
	lastID uint32
}

// NewDesktop builds a desktop notifier from the notify config section.
func NewDesktop(cfg config.NotifyConfig, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = "voxkey"
	}
	return &Desktop{
		logger:       logger,
		appName:      appName,
		errorTimeout: cfg.ErrorTimeoutMS,
	}
}

func (d *Desktop) Recording(ctx context.Context) {
	d.post(ctx, "Recording…", 0)
}

func (d *Desktop) Idle(ctx context.Context) {
	d.mu.Lock()
	id := d.lastID
	d.lastID = 0
	d.mu.Unlock()

	if id == 0 {
		return
	}
	if err := desktopDismiss(ctx, id); err != nil {
		d.logger.Debug("notification dismiss failed", "error", err)
	}
}

func (d *Desktop) Transcribed(ctx context.Context, text string) {
	d.post(ctx, summarize(text), transcriptTimeoutMS)
}

func (d *Desktop) Error(ctx context.Context, message string) {
	d.post(ctx, message, d.errorTimeout)
}

func (d *Desktop) post(ctx context.Context, summary string, timeoutMS int) {
	d.mu.Lock()
	replaceID := d.lastID
	d.mu.Unlock()

	id, err := desktopNotify(ctx, d.appName, replaceID, summary, timeoutMS)
	if err != nil {
		d.logger.Debug("desktop notification failed", "error", err)
		return
	}

	d.mu.Lock()
	d.lastID = id
	d.mu.Unlock()
}

// summarize trims long transcripts for the notification bubble.
func summarize(text string) string {
	const limit = 120
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "…"
}

// notifyArgs builds the busctl argv for org.freedesktop.Notifications.Notify.
func notifyArgs(appName string, replaceID uint32, summary string, timeoutMS int) []string {
	return []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		appName,
		fmt.Sprintf("%d", replaceID),
		"",
		summary,
		"",
		"0", // actions array length
		"0", // hints map length
		fmt.Sprintf("%d", timeoutMS),
	}
}

// desktopNotify sends a freedesktop notification over DBus via busctl.
// It returns the notification ID assigned by the server.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	out, err := exec.CommandContext(ctx, "busctl", notifyArgs(appName, replaceID, summary, timeoutMS)...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return 0, fmt.Errorf("desktop notify failed: %w", err)
		}
		return 0, fmt.Errorf("desktop notify failed: %w (%s)", err, trimmed)
	}

	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", strings.TrimSpace(string(out)))
	}

	value, parseErr := strconv.ParseUint(fields[1], 10, 32)
	if parseErr != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], parseErr)
	}
	return uint32(value), nil
}

// desktopDismiss requests explicit close by notification ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	args := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"CloseNotification",
		"u",
		fmt.Sprintf("%d", id),
	}

	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("desktop dismiss failed: %w", err)
		}
		return fmt.Errorf("desktop dismiss failed: %w (%s)", err, trimmed)
	}

	return nil
}
