// User HTTP handlers.
//
// This file exposes the account-scoped endpoints:
//   - GET    /user/profile        (current user)
//   - PATCH  /user/profile        (update username/language)
//   - POST   /user/avatar         (multipart upload)
//   - GET    /user/summary        (stored AI summary)
//   - POST   /user/summary        (regenerate the AI summary)
//   - GET    /user/statistics     (usage statistics)
//   - GET    /user/export         (full account data download)
//   - DELETE /user                (account deletion with tombstoning)
package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/export"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
)

// UpdateProfileRequest carries the mutable profile fields.
type UpdateProfileRequest struct {
	Username *string `json:"username" binding:"omitempty,min=2,max=64"`
	Language *string `json:"language" binding:"omitempty,oneof=en ar"`
}

// maxAvatarBytes caps avatar uploads.
const maxAvatarBytes = 2 << 20

// GetProfile returns the authenticated user's account.
func (h *Handlers) GetProfile(c *gin.Context) {
	user, err := repo.GetUser(c.Request.Context(), h.DB, userID(c))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	ok(c, http.StatusOK, user)
}

// UpdateProfile applies a partial update to username and language.
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	fields := map[string]any{}
	if req.Username != nil {
		fields["username"] = strings.TrimSpace(*req.Username)
	}
	if req.Language != nil {
		fields["language"] = *req.Language
	}
	uid := userID(c)
	if len(fields) > 0 {
		if err := repo.UpdateUserFields(c.Request.Context(), h.DB, uid, fields); err != nil {
			if col, dup := isDuplicate(err); dup {
				fail(c, http.StatusConflict, ErrCodeConflict, col+" already taken")
				return
			}
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
			return
		}
	}
	user, err := repo.GetUser(c.Request.Context(), h.DB, uid)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	ok(c, http.StatusOK, user)
}

// UploadAvatar stores a PNG/JPEG avatar under the upload directory and
// records its path on the profile.
func (h *Handlers) UploadAvatar(c *gin.Context) {
	file, err := c.FormFile("avatar")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'avatar' required")
		return
	}
	if file.Size > maxAvatarBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "avatar exceeds 2 MiB")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" && ext != ".webp" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "avatar must be png, jpeg, or webp")
		return
	}

	uid := userID(c)
	name := fmt.Sprintf("%s-%s%s", uid, uuid.NewString()[:8], ext)
	dst := filepath.Join(h.UploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "avatar store failed")
		return
	}
	if err := repo.UpdateUserFields(c.Request.Context(), h.DB, uid, map[string]any{"avatar_path": name}); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"avatar_path": name})
}

// GetSummary returns the stored AI summary for the current user.
func (h *Handlers) GetSummary(c *gin.Context) {
	sum, err := h.sumSvc.Get(c.Request.Context(), userID(c))
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// GenerateSummary rebuilds the AI summary from recent conversation history.
func (h *Handlers) GenerateSummary(c *gin.Context) {
	uid := userID(c)
	sum, err := h.sumSvc.Generate(c.Request.Context(), uid)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	if h.Hub != nil {
		h.Hub.NotifySummary(uid)
	}
	ok(c, http.StatusOK, sum)
}

// GetStatistics computes usage statistics for the current user.
func (h *Handlers) GetStatistics(c *gin.Context) {
	stats, err := repo.ComputeUserStatistics(c.Request.Context(), h.DB, userID(c), 30)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}

// ExportUserData streams everything the account owns as one JSON document.
func (h *Handlers) ExportUserData(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	user, err := repo.GetUser(ctx, h.DB, uid)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}

	var chats []domain.Chat
	if err := h.DB.WithContext(ctx).
		Where("user_id = ?", uid).
		Order("created_at ASC").
		Find(&chats).Error; err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}

	bundle := make([]export.ChatWithMessages, 0, len(chats))
	for _, ch := range chats {
		msgs, err := repo.ListMessages(h.DB.WithContext(ctx), ch.ID, 0)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
			return
		}
		bundle = append(bundle, export.ChatWithMessages{Chat: ch, Messages: msgs})
	}

	summary, _ := repo.GetSummary(ctx, h.DB, uid)

	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="account-%s.json"`, uid))
	c.Status(http.StatusOK)
	if err := export.WriteUserData(c.Writer, user, bundle, summary); err != nil {
		_ = c.Error(err)
	}
}

// DeleteAccount tombstones the account so the email and username become
// available again, and revokes every session.
func (h *Handlers) DeleteAccount(c *gin.Context) {
	if err := h.authSvc.DeleteAccount(c.Request.Context(), userID(c)); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

// isDuplicate sniffs unique-constraint violations on profile updates.
func isDuplicate(err error) (column string, ok bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique constraint failed") && !strings.Contains(msg, "duplicate") {
		return "", false
	}
	if strings.Contains(msg, "username") {
		return "username", true
	}
	return "email", true
}
