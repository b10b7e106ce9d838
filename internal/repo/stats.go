// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate/statistics queries: small
// stats used for conditional responses (ETag generation) in the HTTP layer,
// and the per-user usage statistics backing the dashboard. Statistics are
// always recomputed from Message/Chat rows, never read from the denormalized
// chat counters.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// ChatsStats returns aggregate metadata for a user's chats: the total number
// of rows and the maximum UpdatedAt timestamp among those rows. Used for weak
// ETags on the chat list.
func ChatsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Chat{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MessagesStats returns aggregate metadata for messages within a given chat:
// the total number of rows and the maximum UpdatedAt among them. Used for
// weak ETags on the message list.
func MessagesStats(ctx context.Context, db *gorm.DB, chatID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// DailyActivity is one day of message activity for the statistics dashboard.
type DailyActivity struct {
	Day      string `json:"day"` // YYYY-MM-DD
	Messages int64  `json:"messages"`
}

// ModelUsage is the per-model message share for the statistics dashboard.
type ModelUsage struct {
	Model    string `json:"model"`
	Messages int64  `json:"messages"`
}

// UserStatistics aggregates a user's usage for the dashboard.
type UserStatistics struct {
	TotalChats        int64           `json:"total_chats"`
	ArchivedChats     int64           `json:"archived_chats"`
	TotalMessages     int64           `json:"total_messages"`
	UserMessages      int64           `json:"user_messages"`
	AssistantMessages int64           `json:"assistant_messages"`
	TotalTokens       int64           `json:"total_tokens"`
	FirstChatAt       *time.Time      `json:"first_chat_at,omitempty"`
	LastMessageAt     *time.Time      `json:"last_message_at,omitempty"`
	Activity          []DailyActivity `json:"activity"`
	Models            []ModelUsage    `json:"models"`
}

// ComputeUserStatistics builds the statistics dashboard for userID from rows.
// activityDays bounds the per-day series (most recent first in SQL, returned
// ascending).
func ComputeUserStatistics(ctx context.Context, db *gorm.DB, userID string, activityDays int) (*UserStatistics, error) {
	out := &UserStatistics{}
	h := db.WithContext(ctx)

	if err := h.Model(&domain.Chat{}).Where("user_id = ?", userID).Count(&out.TotalChats).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Chat{}).Where("user_id = ? AND archived = ?", userID, true).Count(&out.ArchivedChats).Error; err != nil {
		return nil, err
	}

	// Messages join through chats to scope by owner.
	const ownedMsgs = "chat_id IN (SELECT id FROM chats WHERE user_id = ? AND deleted_at IS NULL)"
	msgQ := h.Model(&domain.Message{}).Where(ownedMsgs, userID)
	if err := msgQ.Count(&out.TotalMessages).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Message{}).Where(ownedMsgs+" AND role = ?", userID, domain.RoleUser).Count(&out.UserMessages).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Message{}).Where(ownedMsgs+" AND role = ?", userID, domain.RoleAssistant).Count(&out.AssistantMessages).Error; err != nil {
		return nil, err
	}
	if err := h.Raw(
		"SELECT COALESCE(SUM(token_count),0) FROM messages WHERE deleted_at IS NULL AND "+ownedMsgs,
		userID,
	).Scan(&out.TotalTokens).Error; err != nil {
		return nil, err
	}

	var firstChat struct{ CreatedAt time.Time }
	if err := h.Model(&domain.Chat{}).Where("user_id = ?", userID).
		Select("created_at").Order("created_at ASC").Limit(1).Scan(&firstChat).Error; err == nil && !firstChat.CreatedAt.IsZero() {
		out.FirstChatAt = &firstChat.CreatedAt
	}
	var lastMsg struct{ CreatedAt time.Time }
	if err := h.Model(&domain.Message{}).Where(ownedMsgs, userID).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&lastMsg).Error; err == nil && !lastMsg.CreatedAt.IsZero() {
		out.LastMessageAt = &lastMsg.CreatedAt
	}

	if activityDays < 1 {
		activityDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -activityDays)
	if err := h.Raw(
		"SELECT strftime('%Y-%m-%d', created_at) AS day, COUNT(*) AS messages "+
			"FROM messages WHERE deleted_at IS NULL AND created_at >= ? AND "+ownedMsgs+" "+
			"GROUP BY day ORDER BY day ASC",
		since, userID,
	).Scan(&out.Activity).Error; err != nil {
		return nil, err
	}

	if err := h.Raw(
		"SELECT model, COUNT(*) AS messages FROM messages "+
			"WHERE deleted_at IS NULL AND role = ? AND model <> '' AND "+ownedMsgs+" "+
			"GROUP BY model ORDER BY messages DESC LIMIT 10",
		domain.RoleAssistant, userID,
	).Scan(&out.Models).Error; err != nil {
		return nil, err
	}

	return out, nil
}
