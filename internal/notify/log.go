package notify

import (
	"context"

	"ridedispatch/internal/logger"
)

// LogPublisher writes events to the service log.
type LogPublisher struct {
	log logger.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.Action("notification")}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, channel string, ev Event) error {
	p.log.Info("event published",
		"channel", channel,
		"type", string(ev.Type),
		"ride_id", ev.RideID,
	)
	return nil
}
