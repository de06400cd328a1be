package service

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/notify"
)

// NotificationService turns committed ride changes into events. Publishing is
// best-effort: failures are logged and never returned to the caller.
type NotificationService struct {
	publisher notify.Publisher
	log       logger.Logger
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher notify.Publisher, log logger.Logger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		log:       log.Action("notify"),
		now:       time.Now,
	}
}

// NotifyNewRideRequest tells each candidate driver, and the shared online
// drivers channel, about a pending ride.
func (s *NotificationService) NotifyNewRideRequest(ctx context.Context, ride *domain.Ride, driverIDs []string) {
	ev := s.event(notify.EventNewRideRequest, ride, map[string]any{
		"pickup":          locationPayload(ride.Pickup),
		"destination":     locationPayload(ride.Destination),
		"vehicle_type_id": ride.VehicleTypeID,
		"estimated_price": ride.EstimatedPrice,
		"distance_km":     ride.DistanceKm,
		"version":         ride.Version().String(),
	})
	for _, id := range driverIDs {
		s.publish(ctx, notify.UserChannel(id), ev)
	}
	s.publish(ctx, notify.OnlineDriversChannel, ev)
}

// NotifyRideAccepted tells the rider who is coming and moves followers of the
// ride to ACCEPTED.
func (s *NotificationService) NotifyRideAccepted(ctx context.Context, ride *domain.Ride) {
	s.publish(ctx, notify.UserChannel(ride.RiderID), s.event(notify.EventRideAccepted, ride, map[string]any{
		"driver": map[string]any{
			"id":            ride.DriverID,
			"name":          ride.DriverName,
			"phone":         ride.DriverPhone,
			"vehicle_plate": ride.VehiclePlate,
		},
		"version": ride.Version().String(),
	}))
	s.NotifyStatusChanged(ctx, ride)
}

// NotifyStatusChanged publishes the ride's new status on its channel.
func (s *NotificationService) NotifyStatusChanged(ctx context.Context, ride *domain.Ride) {
	s.publish(ctx, notify.RideChannel(ride.ID), s.event(notify.EventRideStatusChanged, ride, map[string]any{
		"status":  string(ride.Status),
		"version": ride.Version().String(),
	}))
}

// NotifyRideCompleted sends the final price to the rider and the ride channel.
func (s *NotificationService) NotifyRideCompleted(ctx context.Context, ride *domain.Ride) {
	data := map[string]any{}
	if ride.FinalPrice != nil {
		data["final_price"] = *ride.FinalPrice
	}
	ev := s.event(notify.EventRideCompleted, ride, data)
	s.publish(ctx, notify.RideChannel(ride.ID), ev)
	s.publish(ctx, notify.UserChannel(ride.RiderID), ev)
}

// NotifyRideCancelled informs the ride channel, the rider and the assigned driver, if any.
func (s *NotificationService) NotifyRideCancelled(ctx context.Context, ride *domain.Ride) {
	ev := s.event(notify.EventRideCancelled, ride, map[string]any{
		"cancelled_by": string(ride.CancelledBy),
		"reason":       ride.CancelReason,
	})
	s.publish(ctx, notify.RideChannel(ride.ID), ev)
	s.publish(ctx, notify.UserChannel(ride.RiderID), ev)
	if ride.HasDriver() {
		s.publish(ctx, notify.UserChannel(ride.DriverID), ev)
	}
}

func (s *NotificationService) event(t notify.EventType, ride *domain.Ride, data map[string]any) notify.Event {
	return notify.Event{
		Type:      t,
		RideID:    ride.ID,
		Timestamp: s.now(),
		Data:      data,
	}
}

func (s *NotificationService) publish(ctx context.Context, channel string, ev notify.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, channel, ev); err != nil {
		s.log.Warn("publish failed",
			"channel", channel,
			"type", string(ev.Type),
			"ride_id", ev.RideID,
			"error", err.Error(),
		)
	}
}

func locationPayload(l domain.Location) map[string]any {
	return map[string]any{
		"lat":     l.Lat,
		"lng":     l.Lng,
		"address": l.Address,
	}
}
