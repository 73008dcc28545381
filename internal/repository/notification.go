package repository

import (
	"context"

	"carpool/internal/domain"
)

// NotificationRepository defines the persistence operations for notifications.
type NotificationRepository interface {
	// Create persists a new notification.
	Create(ctx context.Context, notification *domain.Notification) error

	// ListByUser retrieves a user's notifications, newest first.
	// A limit of zero returns all of them.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)

	// MarkRead flags a notification as read if it belongs to userID.
	MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error)

	// CountUnread counts a user's unread notifications.
	CountUnread(ctx context.Context, userID string) (int, error)
}
