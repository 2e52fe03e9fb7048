package services

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskhub/backend/internal/apperrors"
	"taskhub/backend/internal/models"
)

type NotificationService interface {
	ListForUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]models.Notification, error)
	MarkRead(ctx context.Context, db *gorm.DB, notificationID uuid.UUID) error
}

type NotificationServiceImpl struct{}

func NewNotificationService() *NotificationServiceImpl {
	return &NotificationServiceImpl{}
}

// ListForUser returns the user's notifications newest first, each joined
// with its task so clients can show the title.
func (s *NotificationServiceImpl) ListForUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]models.Notification, error) {
	var notifications []models.Notification
	err := db.WithContext(ctx).
		Preload("Task").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&notifications).Error
	if err != nil {
		return nil, apperrors.Internal("failed to list notifications", err)
	}
	return notifications, nil
}

// MarkRead sets the read timestamp. Idempotent: an already-read
// notification keeps its original timestamp and the call succeeds.
func (s *NotificationServiceImpl) MarkRead(ctx context.Context, db *gorm.DB, notificationID uuid.UUID) error {
	var notification models.Notification
	if err := db.WithContext(ctx).Where("id = ?", notificationID).First(&notification).Error; err != nil {
		return apperrors.FromStore(err, "notification not found")
	}

	if notification.ReadAt != nil {
		return nil
	}

	now := time.Now()
	err := db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", notificationID).
		Update("read_at", now).Error
	if err != nil {
		return apperrors.Internal("failed to mark notification read", err)
	}
	return nil
}
