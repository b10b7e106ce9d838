// Message HTTP handlers.
//
// This file exposes the message endpoints within a chat:
//   - POST /chat/{id}/messages                      (send, returns user+assistant pair)
//   - GET  /chat/{id}/messages                      (paginated history, ETag)
//   - PUT  /chat/{id}/messages/{mid}                (edit a user turn and regenerate)
//   - POST /chat/{id}/messages/{mid}/regenerate     (redo an assistant reply)
//   - POST /chat/{id}/messages/{mid}/feedback       (rate an assistant reply)
//
// Handlers are transport-thin: they validate and normalize input (newline and
// length constraints), delegate to MessageService, and implement conditional
// responses (ETag) and idempotency semantics.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, chat, key), the handler returns the recorded
// assistant message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/http/middleware"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/services"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ws"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer, which enforces the
// maximum rune count a second time.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required,min=1"`
}

// EditMessageRequest is the JSON payload for rewriting a user turn.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required,min=1"`
}

// FeedbackRequest carries a rating for an assistant reply.
type FeedbackRequest struct {
	Value *int `json:"value" binding:"required"`
}

// ExchangeResponse is the JSON envelope for a user/assistant message pair.
// AssistantMessage is null when generation failed; the user turn is still
// persisted and the error is reported separately.
type ExchangeResponse struct {
	UserMessage      *domain.Message `json:"user_message,omitempty"`
	AssistantMessage *domain.Message `json:"assistant_message,omitempty"`
}

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxPromptRunes inspects the concrete MessageService for a configured
// prompt-length limit. If unavailable, it returns a conservative fallback.
func discoverMaxPromptRunes(msgSvc MessageService) int {
	const fallback = 4000
	if ms, ok := msgSvc.(*services.MessageService); ok {
		if ms.MaxPromptRunes > 0 {
			return ms.MaxPromptRunes
		}
	}
	return fallback
}

// validateContent runs the shared sanitize + length gate for send/edit bodies.
func (h *Handlers) validateContent(c *gin.Context, raw string) (string, bool) {
	content := sanitizeContent(raw)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return "", false
	}
	maxRunes := discoverMaxPromptRunes(h.msgSvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return "", false
	}
	return content, true
}

// notifyExchange pushes the persisted turns over the WebSocket hub.
func (h *Handlers) notifyExchange(uid string, res *services.SendResult) {
	if h.Hub == nil || res == nil {
		return
	}
	h.Hub.NotifyMessage(uid, ws.EventMessageCreated, res.UserMessage)
	h.Hub.NotifyMessage(uid, ws.EventMessageCreated, res.AssistantMessage)
}

//
// Handlers
//

// PostMessage appends a user turn and returns the generated assistant reply.
// When generation fails the user turn is kept and 502 generation_failed is
// returned; clients can retry via the regenerate endpoint.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content, okContent := h.validateContent(c, req.Content)
	if !okContent {
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if rec, err := repo.GetIdempotency(ctx, h.DB, currentUser, chatID, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := repo.GetMessage(h.DB, rec.MessageID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, ExchangeResponse{AssistantMessage: prev})
				return
			}
		}
	}

	res, err := h.msgSvc.Send(ctx, currentUser, chatID, content)
	if err != nil {
		if res != nil && res.UserMessage != nil {
			// Generation failed after the user turn was stored.
			h.notifyExchange(currentUser, res)
			fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, err.Error())
			return
		}
		mapServiceErr(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && res.AssistantMessage != nil {
		_, _ = repo.CreateIdempotency(ctx, h.DB, currentUser, chatID, idemKey, res.AssistantMessage.ID, http.StatusOK, 24*time.Hour)
	}

	h.notifyExchange(currentUser, res)
	ok(c, http.StatusOK, ExchangeResponse{UserMessage: res.UserMessage, AssistantMessage: res.AssistantMessage})
}

// ListMessages returns a paginated message history in sequence order, with a
// weak ETag for cheap polling.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.MessagesStats(ctx, h.DB, chatID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, chatID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.msgSvc.ListPage(ctx, userID(c), chatID, page, pageSize)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: paginate(page, pageSize, total)})
}

// EditMessage rewrites a user turn, truncates the history after it, and
// regenerates the assistant reply. The edit persists even when regeneration
// fails.
func (h *Handlers) EditMessage(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	messageID, okMsg := messageIDParam(c)
	if !okMsg {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content, okContent := h.validateContent(c, req.Content)
	if !okContent {
		return
	}

	currentUser := userID(c)
	res, err := h.msgSvc.EditAndRegenerate(c.Request.Context(), currentUser, chatID, messageID, content)
	if err != nil {
		if res != nil && res.UserMessage != nil {
			if h.Hub != nil {
				h.Hub.NotifyMessage(currentUser, ws.EventMessageUpdated, res.UserMessage)
			}
			fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, err.Error())
			return
		}
		mapServiceErr(c, err)
		return
	}

	if h.Hub != nil {
		h.Hub.NotifyMessage(currentUser, ws.EventMessageUpdated, res.UserMessage)
		h.Hub.NotifyMessage(currentUser, ws.EventMessageCreated, res.AssistantMessage)
	}
	ok(c, http.StatusOK, ExchangeResponse{UserMessage: res.UserMessage, AssistantMessage: res.AssistantMessage})
}

// RegenerateMessage discards an assistant reply and produces a new one.
func (h *Handlers) RegenerateMessage(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	messageID, okMsg := messageIDParam(c)
	if !okMsg {
		return
	}

	currentUser := userID(c)
	res, err := h.msgSvc.Regenerate(c.Request.Context(), currentUser, chatID, messageID)
	if err != nil {
		if res != nil {
			fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, err.Error())
			return
		}
		mapServiceErr(c, err)
		return
	}

	if h.Hub != nil {
		h.Hub.NotifyMessage(currentUser, ws.EventMessageCreated, res.AssistantMessage)
	}
	ok(c, http.StatusOK, ExchangeResponse{AssistantMessage: res.AssistantMessage})
}

// PostFeedback records a -1/0/+1 rating on an assistant reply.
func (h *Handlers) PostFeedback(c *gin.Context) {
	chatID, okID := chatIDParam(c)
	if !okID {
		return
	}
	messageID, okMsg := messageIDParam(c)
	if !okMsg {
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value required (-1, 0, or 1)")
		return
	}
	if err := h.msgSvc.Feedback(c.Request.Context(), userID(c), chatID, messageID, *req.Value); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

// messageIDParam validates the :mid path parameter as a UUID.
func messageIDParam(c *gin.Context) (string, bool) {
	id := c.Param("mid")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return "", false
	}
	return id, true
}
