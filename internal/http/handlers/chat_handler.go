// Chat HTTP handlers.
//
// This file exposes the chat resource endpoints:
//   - POST   /chat                 (create)
//   - GET    /chat                 (list, paginated, archived filter, ETag)
//   - GET    /chat/search          (ranked history search)
//   - GET    /models               (model catalogue)
//   - GET    /chat/{id}            (fetch one)
//   - PATCH  /chat/{id}            (update metadata)
//   - POST   /chat/{id}/archive    (archive / unarchive)
//   - DELETE /chat/{id}            (soft delete with messages)
//   - GET    /chat/{id}/export     (download as json/csv/txt/md)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/export"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/services"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/utils"
)

// CreateChatRequest is the JSON payload for creating a chat.
type CreateChatRequest struct {
	Title    string `json:"title"`
	Model    string `json:"model"`
	Language string `json:"language" binding:"omitempty,oneof=en ar"`
}

// ArchiveRequest toggles the archived flag.
type ArchiveRequest struct {
	Archived bool `json:"archived"`
}

// ListChatsResponse wraps a page of chats and pagination information.
type ListChatsResponse struct {
	Chats      []ChatSummary `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

// ChatSummary is the list-view projection of a chat.
type ChatSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Model         string `json:"model"`
	Language      string `json:"language"`
	Archived      bool   `json:"archived"`
	Pinned        bool   `json:"pinned"`
	MessageCount  int64  `json:"message_count"`
	TotalTokens   int64  `json:"total_tokens"`
	LastMessageAt string `json:"last_message_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// CreateChat starts a new chat for the current user.
func (h *Handlers) CreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ch, err := h.chatSvc.Create(c.Request.Context(), userID(c), strings.TrimSpace(req.Title), req.Model, req.Language)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, ch)
}

// ListChats returns a page of the user's chats. Supports a weak ETag via
// If-None-Match and may return 304. ?archived=true lists archived chats.
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)
	archived := c.Query("archived") == "true"

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.ChatsStats(ctx, h.DB, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"chats:%s:%d:%d:%t"`, uid, count, ts, archived)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.chatSvc.ListPage(ctx, uid, archived, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	summaries := make([]ChatSummary, 0, len(items))
	for _, ch := range items {
		s := ChatSummary{
			ID:           ch.ID,
			Title:        ch.Title,
			Model:        ch.Model,
			Language:     ch.Language,
			Archived:     ch.Archived,
			Pinned:       ch.Pinned,
			MessageCount: ch.MessageCount,
			TotalTokens:  ch.TotalTokens,
			CreatedAt:    ch.CreatedAt.UTC().Format(timeLayout),
		}
		if ch.LastMessageAt != nil {
			s.LastMessageAt = ch.LastMessageAt.UTC().Format(timeLayout)
		}
		summaries = append(summaries, s)
	}
	ok(c, http.StatusOK, ListChatsResponse{Chats: summaries, Pagination: paginate(page, pageSize, total)})
}

// ListModels serves the model catalogue with fallback ordering metadata.
func (h *Handlers) ListModels(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"models": h.Models})
}

// SearchChats ranks the user's recent messages against ?q and returns the
// best matches across all of their chats.
func (h *Handlers) SearchChats(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 10)
	hits, err := h.chatSvc.SearchMessages(c.Request.Context(), userID(c), q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"query": q, "results": hits})
}

// GetChat fetches a single chat owned by the current user.
func (h *Handlers) GetChat(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	ch, err := h.chatSvc.Get(c.Request.Context(), userID(c), chatID)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// UpdateChat applies a partial metadata update (title, model, language,
// pinned, tags, settings).
func (h *Handlers) UpdateChat(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	var upd services.ChatUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ch, err := h.chatSvc.Update(c.Request.Context(), userID(c), chatID, upd)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	if h.Hub != nil {
		h.Hub.NotifyChat(userID(c), ch)
	}
	ok(c, http.StatusOK, ch)
}

// ArchiveChat toggles the archived flag.
func (h *Handlers) ArchiveChat(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	var req ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.chatSvc.SetArchived(c.Request.Context(), userID(c), chatID, req.Archived); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

// DeleteChat soft-deletes a chat and its messages.
func (h *Handlers) DeleteChat(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	if err := h.chatSvc.Delete(c.Request.Context(), userID(c), chatID); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

// ExportChat streams the chat in the requested format (?format=json|csv|txt|md).
func (h *Handlers) ExportChat(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	format := c.DefaultQuery("format", export.FormatJSON)
	if !export.ValidFormat(format) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "format must be one of json, csv, txt, md")
		return
	}

	ctx := c.Request.Context()
	ch, err := h.chatSvc.Get(ctx, userID(c), chatID)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	msgs, err := repo.ListMessages(h.DB.WithContext(ctx), chatID, 0)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}

	c.Header("Content-Type", export.ContentType(format))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="chat-%s.%s"`, chatID, format))
	c.Status(http.StatusOK)
	if err := export.WriteChat(c.Writer, format, ch, msgs); err != nil {
		// Headers are already out; log and drop the connection.
		_ = c.Error(err)
	}
}

// chatIDParam validates the :id path parameter as a UUID.
func chatIDParam(c *gin.Context) (string, bool) {
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return "", false
	}
	return chatID, true
}
