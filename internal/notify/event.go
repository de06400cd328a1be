package notify

import (
	"context"
	"encoding/json"
	"time"
)

// EventType names a ride event.
type EventType string

const (
	EventNewRideRequest    EventType = "NEW_RIDE_REQUEST"
	EventRideAccepted      EventType = "RIDE_ACCEPTED"
	EventRideStatusChanged EventType = "RIDE_STATUS_CHANGED"
	EventRideCancelled     EventType = "RIDE_CANCELLED"
	EventRideCompleted     EventType = "RIDE_COMPLETED"
)

// OnlineDriversChannel reaches every connected driver, including ones whose
// location is not indexed yet.
const OnlineDriversChannel = "drivers:online"

// RideChannel is the shared channel for everyone following a ride.
func RideChannel(rideID string) string {
	return "ride:" + rideID
}

// UserChannel addresses one rider or driver.
func UserChannel(userID string) string {
	return "user:" + userID
}

// Event is one notification payload. Data fields are flattened next to the
// fixed keys when encoded.
type Event struct {
	Type      EventType
	RideID    string
	Timestamp time.Time
	Data      map[string]any
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+3)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = e.Type
	out["ride_id"] = e.RideID
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// Envelope pairs an event with the channel it was published on.
type Envelope struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
}

// Publisher delivers an event to every subscriber of a channel.
// Delivery is attempted once; callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
}
