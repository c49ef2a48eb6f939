package policies

import (
	"context"
	"log/slog"
)

// Notifier delivers lifecycle notifications to users. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, payload any) error
}

// NotifyAll sends eventType to every recipient and logs failures instead of
// returning them.
func NotifyAll(ctx context.Context, n Notifier, logger *slog.Logger, eventType string, payload any, recipients ...string) {
	if n == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, userID := range recipients {
		if userID == "" {
			continue
		}
		if err := n.Notify(ctx, userID, eventType, payload); err != nil {
			logger.WarnContext(ctx, "notification failed", "user_id", userID, "event", eventType, "error", err)
		}
	}
}
