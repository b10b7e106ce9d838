// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the per-chat sequence allocation that orders history and
// drives edit/regenerate truncation.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// NextSeq returns the next monotonic sequence number for chatID. It must be
// called inside the transaction that inserts the message; the unique
// (chat_id, seq) index rejects the insert if a concurrent writer won the race.
func NextSeq(db *gorm.DB, chatID string) (int64, error) {
	var max int64
	err := db.Raw(
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE chat_id = ?",
		chatID,
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// CreateMessage inserts a new message row, allocating its sequence number
// under the caller's transaction.
func CreateMessage(db *gorm.DB, chatID, role, content string, tokenCount int, model string, parentID *string) (*domain.Message, error) {
	seq, err := NextSeq(db, chatID)
	if err != nil {
		return nil, err
	}
	m := &domain.Message{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Seq:        seq,
		Role:       role,
		Content:    content,
		TokenCount: tokenCount,
		Model:      model,
		ParentID:   parentID,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListMessages returns messages ordered by sequence number ascending.
func ListMessages(db *gorm.DB, chatID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("chat_id = ?", chatID).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListRecentMessages returns the last limit messages of a chat in ascending
// sequence order; used to assemble provider history windows.
func ListRecentMessages(db *gorm.DB, chatID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.Where("chat_id = ?", chatID).
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListUserPrompts returns the most recent user-authored messages across all
// of the user's live chats, newest first; input for summary generation.
func ListUserPrompts(db *gorm.DB, userID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("role = ? AND chat_id IN (SELECT id FROM chats WHERE user_id = ? AND deleted_at IS NULL)",
			domain.RoleUser, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUserMessages returns the most recent messages of any role across all
// of the user's live chats, newest first; candidate pool for history search.
func ListUserMessages(db *gorm.DB, userID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("chat_id IN (SELECT id FROM chats WHERE user_id = ? AND deleted_at IS NULL)", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ? AND deleted_at IS NULL", chatID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered by sequence ascending.
func ListMessagesPage(db *gorm.DB, chatID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("chat_id = ?", chatID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessagesAfterSeq soft-deletes every message of the chat with a
// sequence number strictly greater than seq. It returns the number of rows
// affected and must run inside the edit/regenerate transaction.
func DeleteMessagesAfterSeq(db *gorm.DB, chatID string, seq int64) (int64, error) {
	res := db.Where("chat_id = ? AND seq > ?", chatID, seq).Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}

// UpdateMessageContent overwrites a message's content and marks it edited.
func UpdateMessageContent(db *gorm.DB, id, content string, tokenCount int, editedAt time.Time) error {
	res := db.Model(&domain.Message{}).Where("id = ?", id).
		Updates(map[string]any{
			"content":     content,
			"token_count": tokenCount,
			"edited":      true,
			"edited_at":   editedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetMessageFeedback records a -1/+1 rating on a message.
func SetMessageFeedback(db *gorm.DB, id string, value int) error {
	res := db.Model(&domain.Message{}).Where("id = ?", id).Update("feedback", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
