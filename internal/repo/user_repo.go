// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only CRUD persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (exported here as ErrNotFound).
//   - Unique-constraint violations propagate as raw gorm errors; the service
//     layer translates them into domain errors (e.g. ErrEmailTaken).
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts a new User row with a generated UUID and UTC timestamp.
// The caller supplies every other field.
func CreateUser(ctx context.Context, db *gorm.DB, user *domain.User) (*domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser fetches a user by ID, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by email, or ErrNotFound if missing.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByOAuth fetches a user by (provider, subject), or ErrNotFound.
func GetUserByOAuth(ctx context.Context, db *gorm.DB, provider, subject string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("o_auth_provider = ? AND o_auth_subject = ?", provider, subject).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByVerifyToken fetches an unverified user by verification token.
func GetUserByVerifyToken(ctx context.Context, db *gorm.DB, token string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("verify_token = ? AND verify_token <> ''", token).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByResetToken fetches a user by a non-expired password-reset token.
func GetUserByResetToken(ctx context.Context, db *gorm.DB, token string, now time.Time) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("reset_token = ? AND reset_token <> '' AND reset_expires > ?", token, now).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserFields applies a partial update to a user row. It returns
// ErrNotFound when no row matches.
func UpdateUserFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordFailedLogin increments the failed-login counter and, when the counter
// reaches maxFailures, sets LockedUntil. It returns the new counter value.
// The read-increment-write runs under the caller's handle; callers wrap it in
// a transaction together with the credential check.
func RecordFailedLogin(ctx context.Context, db *gorm.DB, id string, maxFailures int, lockFor time.Duration) (int, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return 0, err
	}
	u.FailedLogins++
	fields := map[string]any{"failed_logins": u.FailedLogins}
	if u.FailedLogins >= maxFailures {
		until := time.Now().UTC().Add(lockFor)
		fields["locked_until"] = &until
	}
	if err := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return 0, err
	}
	return u.FailedLogins, nil
}

// ResetFailedLogins clears the lockout bookkeeping after a successful login.
func ResetFailedLogins(ctx context.Context, db *gorm.DB, id string, loginAt time.Time) error {
	return db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]any{
			"failed_logins": 0,
			"locked_until":  nil,
			"last_login_at": loginAt,
		}).Error
}

// TombstoneUser rewrites the unique email/username of a user to
// "deleted:<id>:<value>" and soft-deletes the row, so the original address
// can register again. Runs as a single transaction with the soft delete of
// the user's chats.
func TombstoneUser(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		if err := tx.Where("id = ?", id).First(&u).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"email":    fmt.Sprintf("deleted:%s:%s", u.ID, u.Email),
			"username": fmt.Sprintf("deleted:%s:%s", u.ID, u.Username),
		}
		if err := tx.Model(&domain.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.Chat{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.User{}).Error
	})
}
