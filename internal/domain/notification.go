package domain

import "time"

// NotificationType classifies a user notification.
type NotificationType string

const (
	NotificationTripCreated      NotificationType = "TRIP_CREATED"
	NotificationTripJoined       NotificationType = "TRIP_JOINED"
	NotificationPassengerJoined  NotificationType = "PASSENGER_JOINED"
	NotificationTripLeft         NotificationType = "TRIP_LEFT"
	NotificationPassengerLeft    NotificationType = "PASSENGER_LEFT"
	NotificationTripUpdate       NotificationType = "TRIP_UPDATE"
	NotificationTripStatusUpdate NotificationType = "TRIP_STATUS_UPDATE"
	NotificationPaymentSuccess   NotificationType = "PAYMENT_SUCCESS"
	NotificationPaymentFailure   NotificationType = "PAYMENT_FAILURE"
)

// Notification is a persisted message addressed to one user.
type Notification struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	Type            NotificationType `json:"type"`
	Content         string           `json:"content"`
	RelatedEntityID string           `json:"related_entity_id,omitempty"`
	IsRead          bool             `json:"is_read"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TripEventType names an event on the trip stream.
type TripEventType string

const (
	TripEventCreated        TripEventType = "trip.created"
	TripEventUpdated        TripEventType = "trip.updated"
	TripEventRemoved        TripEventType = "trip.removed"
	TripEventJoined         TripEventType = "trip.joined"
	TripEventLeft           TripEventType = "trip.left"
	TripEventStatusChanged  TripEventType = "trip.status_changed"
	TripEventPaymentSettled TripEventType = "trip.payment_settled"
)

// TripEvent is published after a committed trip or reservation change.
type TripEvent struct {
	Type          TripEventType `json:"type"`
	TripID        string        `json:"trip_id"`
	ActorID       string        `json:"actor_id,omitempty"`
	ReservationID string        `json:"reservation_id,omitempty"`
	Seats         int           `json:"seats,omitempty"`
	Status        string        `json:"status,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}
