package services

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskhub/backend/internal/apperrors"
	"taskhub/backend/internal/models"
)

type RegistrationRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type RegisterService interface {
	RegisterUser(ctx context.Context, db *gorm.DB, req RegistrationRequest) (*models.User, error)
}

type RegisterServiceImpl struct{}

func NewRegisterService() *RegisterServiceImpl {
	return &RegisterServiceImpl{}
}

func (s *RegisterServiceImpl) RegisterUser(ctx context.Context, db *gorm.DB, req RegistrationRequest) (*models.User, error) {
	var existing models.User
	if err := db.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return nil, apperrors.Conflict("user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Internal("failed to check existing user", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}

	user := models.User{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	}

	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, apperrors.Internal("failed to create user", err)
	}

	return &user, nil
}
