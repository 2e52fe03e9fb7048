package services

import (
	"context"

	"gorm.io/gorm"

	"taskhub/backend/internal/apperrors"
	"taskhub/backend/internal/models"
)

type UserService interface {
	GetUsers(ctx context.Context, db *gorm.DB) ([]models.PublicUser, error)
}

type UserServiceImpl struct{}

func NewUserService() *UserServiceImpl {
	return &UserServiceImpl{}
}

// GetUsers lists every user's public projection, for assignee pickers.
func (s *UserServiceImpl) GetUsers(ctx context.Context, db *gorm.DB) ([]models.PublicUser, error) {
	var users []models.User
	if err := db.WithContext(ctx).Order("name asc").Find(&users).Error; err != nil {
		return nil, apperrors.Internal("failed to list users", err)
	}

	public := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}
	return public, nil
}
