// Package notify delivers price alerts to users.
package notify

import (
	"context"
	"log/slog"
)

// Dispatcher delivers a text message to a user.
type Dispatcher interface {
	Notify(ctx context.Context, userID, text string) error
}

// LogDispatcher logs messages instead of sending them. Used for local development.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a dispatcher that only logs.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Notify logs the message.
func (d *LogDispatcher) Notify(_ context.Context, userID, text string) error {
	d.logger.Info("MOCK NOTIFICATION",
		"user_id", userID,
		"text_length", len(text),
		"text", text)
	return nil
}
