package main

import (
	"context"
	"time"

	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks/internal/events"
)

// alertNotifier surfaces conditions that need operator attention, both in the
// service log and on the kick-auth-status exchange so that a downstream
// dashboard or alerting consumer can pick them up.
type alertNotifier struct {
	producer *events.Producer
	logger   *slog.Logger
}

func (n *alertNotifier) Critical(message string) {
	n.logger.Error("CRITICAL", "message", message)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.producer.Send(ctx, map[string]string{"level": "critical", "message": message}); err != nil {
		n.logger.Error("Failed to publish critical notification", "error", err)
	}
}
