package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskhub/backend/internal/apperrors"
	"taskhub/backend/internal/models"
)

type AuthService interface {
	LoginUser(ctx context.Context, db *gorm.DB, email, password string) (*models.User, error)
	GenerateTokens(ctx context.Context, db *gorm.DB, userID uuid.UUID) (string, string, error)
	RefreshTokens(ctx context.Context, db *gorm.DB, refreshToken string) (string, string, error)
	RevokeToken(ctx context.Context, db *gorm.DB, refreshToken string) error
	GetUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, userID uuid.UUID, name string) (*models.User, error)
}

type AuthServiceImpl struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(accessTTL, refreshTTL time.Duration) *AuthServiceImpl {
	return &AuthServiceImpl{accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// JWTSecret returns the signing secret. Shared with the auth middleware.
func JWTSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_secret_change_in_production"
	}
	return []byte(secret)
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

// LoginUser checks credentials. Unknown email and wrong password fail the
// same way so callers cannot probe for accounts.
func (s *AuthServiceImpl) LoginUser(ctx context.Context, db *gorm.DB, email, password string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthorized("invalid credentials")
		}
		return nil, apperrors.Internal("failed to look up user", err)
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	return &user, nil
}

// GenerateTokens issues an access token and a refresh token, persisting the
// refresh token's jti so it can be rotated and revoked.
func (s *AuthServiceImpl) GenerateTokens(ctx context.Context, db *gorm.DB, userID uuid.UUID) (string, string, error) {
	now := time.Now()

	accessClaims := jwt.MapClaims{
		"user_id": userID.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(s.accessTTL).Unix(),
		"iss":     "taskhub-backend",
		"aud":     "taskhub-users",
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString(JWTSecret())
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	jti, err := uuid.NewV4()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate jti: %w", err)
	}

	refreshExpiry := now.Add(s.refreshTTL)
	refreshClaims := jwt.MapClaims{
		"user_id": userID.String(),
		"type":    "refresh",
		"jti":     jti.String(),
		"iat":     now.Unix(),
		"exp":     refreshExpiry.Unix(),
		"iss":     "taskhub-backend",
		"aud":     "taskhub-users",
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString(JWTSecret())
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	tokenRecord := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserID:       userID,
		JTI:          jti,
		RefreshToken: refreshTokenString,
		ExpiresAt:    refreshExpiry,
	}

	if err := db.WithContext(ctx).Create(&tokenRecord).Error; err != nil {
		return "", "", fmt.Errorf("failed to create token record: %w", err)
	}

	return accessTokenString, refreshTokenString, nil
}

// RefreshTokens rotates a refresh token: the old jti is deleted and a fresh
// access/refresh pair is issued.
func (s *AuthServiceImpl) RefreshTokens(ctx context.Context, db *gorm.DB, refreshToken string) (string, string, error) {
	claims, err := parseRefreshClaims(refreshToken)
	if err != nil {
		return "", "", apperrors.Unauthorized("invalid refresh token")
	}

	jti, err := uuid.FromString(claims.jti)
	if err != nil {
		return "", "", apperrors.Unauthorized("invalid refresh token")
	}
	userID, err := uuid.FromString(claims.userID)
	if err != nil {
		return "", "", apperrors.Unauthorized("invalid refresh token")
	}

	var dbToken models.Token
	err = db.WithContext(ctx).
		Where("jti = ? AND user_id = ? AND expires_at > ?", jti, userID, time.Now()).
		First(&dbToken).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", apperrors.Unauthorized("refresh token not found or expired")
		}
		return "", "", apperrors.Internal("failed to look up refresh token", err)
	}

	accessToken, newRefreshToken, err := s.GenerateTokens(ctx, db, userID)
	if err != nil {
		return "", "", apperrors.Internal("failed to generate new tokens", err)
	}

	if err := db.WithContext(ctx).Delete(&dbToken).Error; err != nil {
		return "", "", apperrors.Internal("failed to delete old token", err)
	}

	return accessToken, newRefreshToken, nil
}

func (s *AuthServiceImpl) RevokeToken(ctx context.Context, db *gorm.DB, refreshToken string) error {
	claims, err := parseRefreshClaims(refreshToken)
	if err != nil {
		return apperrors.Unauthorized("invalid refresh token")
	}

	jti, err := uuid.FromString(claims.jti)
	if err != nil {
		return apperrors.Unauthorized("invalid refresh token")
	}

	return db.WithContext(ctx).Where("jti = ?", jti).Delete(&models.Token{}).Error
}

func (s *AuthServiceImpl) GetUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, apperrors.FromStore(err, "user not found")
	}
	return &user, nil
}

func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, db *gorm.DB, userID uuid.UUID, name string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, apperrors.FromStore(err, "user not found")
	}

	err := db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("name", name).Error
	if err != nil {
		return nil, apperrors.Internal("failed to update profile", err)
	}

	user.Name = name
	return &user, nil
}

type refreshClaims struct {
	userID string
	jti    string
}

func parseRefreshClaims(refreshToken string) (refreshClaims, error) {
	token, err := jwt.Parse(refreshToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return JWTSecret(), nil
	})
	if err != nil {
		return refreshClaims{}, fmt.Errorf("invalid refresh token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return refreshClaims{}, errors.New("invalid refresh token claims")
	}

	tokenType, ok := claims["type"].(string)
	if !ok || tokenType != "refresh" {
		return refreshClaims{}, errors.New("invalid token type")
	}

	jti, ok := claims["jti"].(string)
	if !ok {
		return refreshClaims{}, errors.New("missing jti in token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return refreshClaims{}, errors.New("missing user_id in token")
	}

	return refreshClaims{userID: userID, jti: jti}, nil
}
