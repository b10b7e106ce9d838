// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported in this package as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// CreateChat inserts a new Chat row owned by userID. The chat ID is a
// randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateChat(ctx context.Context, db *gorm.DB, chat *domain.Chat) (*domain.Chat, error) {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	chat.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// CountChats returns the number of chats owned by userID matching the
// archived filter.
func CountChats(ctx context.Context, db *gorm.DB, userID string, archived bool) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("user_id = ? AND archived = ?", userID, archived).
		Count(&total).Error
	return total, err
}

// ListChatsPage returns a paginated slice of chats for userID filtered by the
// archived flag, ordered pinned-first and then by most recent activity
// (last_message_at descending, falling back to created_at for empty chats).
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListChatsPage(ctx context.Context, db *gorm.DB, userID string, archived bool, offset, limit int) ([]domain.Chat, error) {
	var out []domain.Chat
	err := db.WithContext(ctx).
		Where("user_id = ? AND archived = ?", userID, archived).
		Order("pinned DESC, COALESCE(last_message_at, created_at) DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetChat fetches a single chat by its ID and owner (userID). If the record
// does not exist, it returns ErrNotFound. On other DB errors, the raw error
// is returned.
func GetChat(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateChatFields applies a partial update to a chat identified by id and
// owned by userID. If no rows are affected (chat missing or not owned by
// userID), it returns ErrNotFound.
func UpdateChatFields(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetChatArchived flips the archived flag, enforcing user ownership.
func SetChatArchived(ctx context.Context, db *gorm.DB, id, userID string, archived bool) error {
	return UpdateChatFields(ctx, db, id, userID, map[string]any{"archived": archived})
}

// DeleteChat soft-deletes a chat and its messages in one transaction.
// Returns ErrNotFound when the chat does not exist or is not owned by userID.
func DeleteChat(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("chat_id = ?", id).Delete(&domain.Message{}).Error
	})
}

// BumpChatCounters adds to the denormalized MessageCount/TotalTokens counters
// and stamps LastMessageAt. Must run inside the same transaction as the
// message insert so the counters never observe a partial exchange.
func BumpChatCounters(db *gorm.DB, chatID string, messages int, tokens int, at time.Time) error {
	return db.Model(&domain.Chat{}).Where("id = ?", chatID).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + ?", messages),
			"total_tokens":    gorm.Expr("total_tokens + ?", tokens),
			"last_message_at": at,
		}).Error
}

// RecountChat recomputes MessageCount and TotalTokens from the message rows.
// It exists because the counters are denormalized; the reconciliation job in
// cmd/server runs it periodically over all live chats.
func RecountChat(ctx context.Context, db *gorm.DB, chatID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row struct {
			N      int64
			Tokens int64
		}
		err := tx.Raw(
			"SELECT COUNT(*) AS n, COALESCE(SUM(token_count),0) AS tokens FROM messages WHERE chat_id = ? AND deleted_at IS NULL",
			chatID,
		).Scan(&row).Error
		if err != nil {
			return err
		}
		return tx.Model(&domain.Chat{}).Where("id = ?", chatID).
			Updates(map[string]any{"message_count": row.N, "total_tokens": row.Tokens}).Error
	})
}

// ListChatIDs returns the IDs of every live chat; used by the counter
// reconciliation job.
func ListChatIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.Chat{}).Pluck("id", &ids).Error
	return ids, err
}
