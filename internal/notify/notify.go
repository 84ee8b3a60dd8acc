// Package notify surfaces dictation state through desktop notifications.
package notify

import "context"

// Notifier receives dictation lifecycle updates for the desktop.
type Notifier interface {
	Recording(context.Context)
	Idle(context.Context)
	Transcribed(ctx context.Context, text string)
	Error(ctx context.Context, message string)
}

// Noop keeps the daemon flow intact when notifications are disabled.
type Noop struct{}

func (Noop) Recording(context.Context)           {}
func (Noop) Idle(context.Context)                {}
func (Noop) Transcribed(context.Context, string) {}
func (Noop) Error(context.Context, string)       {}
