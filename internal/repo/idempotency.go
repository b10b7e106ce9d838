// Idempotency records for the message-send endpoint: one row per
// (user, chat, key) pointing at the assistant message the original request
// produced. Rows expire by timestamp; lookups filter rather than delete.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// ErrDuplicate reports that a record already exists for the
// (user_id, chat_id, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns an unexpired record or ErrNotFound. A blank chat id
// can never match and short-circuits to ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, chatID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, ErrNotFound
	}
	var row domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ? AND key = ? AND expires_at > ?", userID, chatID, key, now).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &row, err
}

// CreateIdempotency inserts a record valid for ttl, mapping a unique-index
// violation to ErrDuplicate so concurrent retries of the same send race
// safely.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, chatID, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	row := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		// The pure-Go sqlite driver reports unique violations as plain text.
		msg := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(msg, "unique constraint failed") ||
			strings.Contains(msg, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return row, nil
}
