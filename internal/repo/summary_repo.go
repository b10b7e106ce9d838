// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the UserSummary
// and RefreshToken models.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// GetSummary fetches the summary row for userID, or ErrNotFound.
func GetSummary(ctx context.Context, db *gorm.DB, userID string) (*domain.UserSummary, error) {
	var s domain.UserSummary
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSummary replaces a user's summary wholesale. Summaries carry no
// incremental state, so the existing row (if any) is overwritten.
func UpsertSummary(ctx context.Context, db *gorm.DB, s *domain.UserSummary) (*domain.UserSummary, error) {
	existing, err := GetSummary(ctx, db, s.UserID)
	switch {
	case err == nil:
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		if err := db.WithContext(ctx).Save(s).Error; err != nil {
			return nil, err
		}
		return s, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.ID = uuid.NewString()
		s.CreatedAt = time.Now().UTC()
		if err := db.WithContext(ctx).Create(s).Error; err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, err
	}
}

// CreateRefreshToken persists the hash of a newly issued refresh token.
func CreateRefreshToken(ctx context.Context, db *gorm.DB, userID, tokenHash string, expiresAt time.Time) (*domain.RefreshToken, error) {
	rt := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rt).Error; err != nil {
		return nil, err
	}
	return rt, nil
}

// GetRefreshToken fetches a live (unrevoked, unexpired) refresh token by hash.
func GetRefreshToken(ctx context.Context, db *gorm.DB, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := db.WithContext(ctx).
		Where("token_hash = ? AND revoked = ? AND expires_at > ?", tokenHash, false, now).
		First(&rt).Error
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks a single refresh token revoked.
func RevokeRefreshToken(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Model(&domain.RefreshToken{}).Where("id = ?", id).
		Update("revoked", true).Error
}

// RevokeUserRefreshTokens revokes every live refresh token of a user
// (logout-everywhere, password reset, account deletion).
func RevokeUserRefreshTokens(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}
