package notify

import (
	"context"

	"dealdesk/internal/domain"
)

// Sink is the notification capability handed to components that emit
// notifications. Emitters never see the storage behind it, so there is no
// process-wide mutable notification state to share.
type Sink interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// Store extends Sink with the read-side operations the HTTP layer needs.
type Store interface {
	Sink
	List(ctx context.Context, userID int64) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID int64, notificationID string) error
	MarkAllRead(ctx context.Context, userID int64) error
}
