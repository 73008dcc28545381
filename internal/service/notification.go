package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carpool/internal/domain"
	"carpool/internal/observability"
	"carpool/internal/realtime"
	"carpool/internal/repository"
)

// RecentNotificationsLimit is the page size of the recent notifications feed.
const RecentNotificationsLimit = 10

// NotificationRequest describes one notification to deliver.
type NotificationRequest struct {
	UserID          string
	Type            domain.NotificationType
	Content         string
	RelatedEntityID string
}

// Pusher delivers a realtime event to a connected user.
type Pusher interface {
	Push(userID, event string, data any) error
}

// NotificationService persists notifications and pushes them to connected users.
type NotificationService struct {
	repo   repository.NotificationRepository
	pusher Pusher
	logger *slog.Logger
}

// NewNotificationService creates a new NotificationService. pusher may be nil.
func NewNotificationService(repo repository.NotificationRepository, pusher Pusher, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		pusher: pusher,
		logger: logger,
	}
}

// Notify persists a notification and pushes it to the user's open sessions.
// A failed push does not fail the call; the notification is still stored.
func (s *NotificationService) Notify(ctx context.Context, req NotificationRequest) (*domain.Notification, error) {
	if req.UserID == "" {
		return nil, invalidArgument("notification recipient is required")
	}
	if req.Content == "" {
		return nil, invalidArgument("notification content is required")
	}

	notification := &domain.Notification{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Type:            req.Type,
		Content:         req.Content,
		RelatedEntityID: req.RelatedEntityID,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	observability.NotificationsSent.WithLabelValues(string(req.Type)).Inc()

	if s.pusher != nil {
		if err := s.pusher.Push(req.UserID, realtime.EventNewNotification, notification); err != nil {
			if errors.Is(err, realtime.ErrNoSession) {
				s.logger.Debug("user offline, notification stored only", "user_id", req.UserID)
			} else {
				s.logger.Warn("notification push failed", "user_id", req.UserID, "error", err)
			}
		}
	}

	return notification, nil
}

// ListForUser returns all notifications of a user, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]*domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID, 0)
}

// Recent returns the latest notifications of a user.
func (s *NotificationService) Recent(ctx context.Context, userID string) ([]*domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID, RecentNotificationsLimit)
}

// MarkAsRead flags one of the user's notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	return s.repo.MarkRead(ctx, notificationID, userID)
}

// UnreadCount returns the number of unread notifications of a user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

var _ Notifier = (*NotificationService)(nil)

// Notification texts.

func tripCreatedContent(t *domain.Trip) string {
	return fmt.Sprintf("Your trip from %s to %s has been created successfully.", t.DepartureLocation, t.ArrivalLocation)
}

func tripJoinedContent(t *domain.Trip, seats int) string {
	return fmt.Sprintf("You have joined the trip from %s to %s with %d seat(s)", t.DepartureLocation, t.ArrivalLocation, seats)
}

func passengerJoinedContent(t *domain.Trip, seats int) string {
	return fmt.Sprintf("A new passenger has joined your trip to %s with %d seat(s)", t.ArrivalLocation, seats)
}

func tripLeftContent(t *domain.Trip) string {
	return fmt.Sprintf("You have left the trip from %s to %s", t.DepartureLocation, t.ArrivalLocation)
}

func passengerLeftContent(t *domain.Trip) string {
	return fmt.Sprintf("A passenger has left your trip to %s", t.ArrivalLocation)
}

func tripUpdatedDriverContent(t *domain.Trip) string {
	return fmt.Sprintf("Your trip to %s has been updated.", t.ArrivalLocation)
}

func tripUpdatedPassengerContent(t *domain.Trip) string {
	return fmt.Sprintf("The trip to %s has been updated. Please check the new details.", t.ArrivalLocation)
}

func tripStatusContent(status domain.TripStatus) string {
	switch status {
	case domain.TripStatusConfirmed:
		return "The trip has been confirmed"
	case domain.TripStatusCancelled:
		return "The trip has been cancelled"
	case domain.TripStatusInProgress:
		return "The trip is now in progress"
	case domain.TripStatusCompleted:
		return "The trip has been completed"
	default:
		return fmt.Sprintf("Trip status has been updated to %s", status)
	}
}

func paymentSucceededContent(p *domain.Payment) string {
	return fmt.Sprintf("Your payment of %.2f %s was successful.", p.Amount, strings.ToUpper(p.Currency))
}

func paymentFailedContent(p *domain.Payment) string {
	return fmt.Sprintf("Your payment of %.2f %s failed. Please update your payment method.", p.Amount, strings.ToUpper(p.Currency))
}
