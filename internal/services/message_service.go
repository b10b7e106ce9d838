// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of chat messages and assistant replies. It validates
// inputs, checks chat ownership, assembles the recent-history window for the
// AI provider layer, and persists user/assistant turns together with the
// chat's denormalized counters.
//
// Ordering and truncation are keyed on the per-chat message sequence number,
// never on wall-clock timestamps: editing a user turn deletes every message
// with a higher sequence in the same transaction as the content update, so a
// crashed regeneration can never leave stale downstream replies behind.
//
// Optional enhancement: the chat title is auto-generated from the first user
// prompt when the chat still has a placeholder title.
//
// Observability: the write paths are OpenTelemetry-instrumented; spans include
// chat/user identifiers.
package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ai"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// default titles considered placeholders, eligible for auto-generation
	defaultTitleNew      = "New chat"
	defaultTitleUntitled = "Untitled"
)

// SendResult bundles the persisted turns of one exchange. Assistant is nil
// when generation failed after the user turn was stored.
type SendResult struct {
	UserMessage      *domain.Message `json:"user_message"`
	AssistantMessage *domain.Message `json:"assistant_message,omitempty"`
}

// MessageService coordinates message persistence and AI-generated replies.
type MessageService struct {
	DB *gorm.DB
	AI *ai.Router

	// HistoryLimit bounds the number of prior turns sent to the provider.
	HistoryLimit int
	// MaxPromptRunes guards against oversized prompts; 0 disables the check.
	MaxPromptRunes int

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int
}

// NewMessageService constructs a MessageService with production limits.
func NewMessageService(db *gorm.DB, router *ai.Router, historyLimit int) *MessageService {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &MessageService{
		DB:             db,
		AI:             router,
		HistoryLimit:   historyLimit,
		MaxPromptRunes: 8000,
		TitleLocale:    language.Und,
		TitleMaxLen:    60,
	}
}

// Send validates the prompt, persists the user turn, requests an assistant
// reply over the recent history window, and persists the reply. The user turn
// survives even when every provider fails, so the caller can retry with
// Regenerate instead of retyping.
func (s *MessageService) Send(ctx context.Context, userID, chatID, prompt string) (*SendResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	chat, err := repo.GetChat(ctx, s.DB, chatID, userID)
	if err != nil {
		return nil, ErrChatNotFound
	}

	// Persist the user turn (and maybe the auto-title) first.
	var userMsg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, chatID, domain.RoleUser, prompt, ai.EstimateTokens(prompt), "", nil)
		if err != nil {
			return err
		}
		userMsg = m
		if err := repo.BumpChatCounters(tx, chatID, 1, m.TokenCount, m.CreatedAt); err != nil {
			return err
		}
		if s.shouldAutoTitle(chat.Title) {
			if gen := s.generateTitleFromPrompt(prompt); gen != "" {
				if uerr := tx.Model(&domain.Chat{}).Where("id = ?", chatID).Update("title", s.clipTitle(gen)).Error; uerr == nil {
					chat.Title = gen
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	assistant, err := s.generateReply(ctx, chat, nil)
	if err != nil {
		return &SendResult{UserMessage: userMsg}, err
	}
	return &SendResult{UserMessage: userMsg, AssistantMessage: assistant}, nil
}

// EditAndRegenerate rewrites a user turn and truncates everything after it,
// then generates a fresh assistant reply over the shortened history. The edit
// and the truncation commit atomically before any provider call, so the edit
// sticks even if regeneration fails.
func (s *MessageService) EditAndRegenerate(ctx context.Context, userID, chatID, messageID, newContent string) (*SendResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "EditAndRegenerate",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("message.id", messageID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(newContent) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	chat, err := repo.GetChat(ctx, s.DB, chatID, userID)
	if err != nil {
		return nil, ErrChatNotFound
	}

	var edited *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(tx, messageID)
		if err != nil || msg.ChatID != chatID {
			return ErrMessageNotFound
		}
		if msg.Role != domain.RoleUser {
			return ErrNotUserMessage
		}
		if _, err := repo.DeleteMessagesAfterSeq(tx, chatID, msg.Seq); err != nil {
			return err
		}
		if err := repo.UpdateMessageContent(tx, msg.ID, newContent, ai.EstimateTokens(newContent), time.Now().UTC()); err != nil {
			return err
		}
		// Truncation invalidates the denormalized counters; recount in-tx.
		if err := repo.RecountChat(ctx, tx, chatID); err != nil {
			return err
		}
		m, err := repo.GetMessage(tx, msg.ID)
		if err != nil {
			return err
		}
		edited = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	assistant, err := s.generateReply(ctx, chat, &edited.ID)
	if err != nil {
		return &SendResult{UserMessage: edited}, err
	}
	return &SendResult{UserMessage: edited, AssistantMessage: assistant}, nil
}

// Regenerate discards an assistant reply (and anything after it) and produces
// a new one from the surviving history.
func (s *MessageService) Regenerate(ctx context.Context, userID, chatID, messageID string) (*SendResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Regenerate",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	chat, err := repo.GetChat(ctx, s.DB, chatID, userID)
	if err != nil {
		return nil, ErrChatNotFound
	}

	var parentID *string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(tx, messageID)
		if err != nil || msg.ChatID != chatID {
			return ErrMessageNotFound
		}
		if msg.Role != domain.RoleAssistant {
			return ErrNotAssistantMessage
		}
		parentID = msg.ParentID
		// Drop the reply itself plus anything that followed it.
		if _, err := repo.DeleteMessagesAfterSeq(tx, chatID, msg.Seq-1); err != nil {
			return err
		}
		return repo.RecountChat(ctx, tx, chatID)
	})
	if err != nil {
		return nil, err
	}

	assistant, err := s.generateReply(ctx, chat, parentID)
	if err != nil {
		return &SendResult{}, err
	}
	return &SendResult{AssistantMessage: assistant}, nil
}

// Feedback records a rating on an assistant reply. Value must be -1, 0, or 1;
// 0 clears previous feedback.
func (s *MessageService) Feedback(ctx context.Context, userID, chatID, messageID string, value int) error {
	if value < -1 || value > 1 {
		return ErrInvalidFeedback
	}
	if _, err := repo.GetChat(ctx, s.DB, chatID, userID); err != nil {
		return ErrChatNotFound
	}
	msg, err := repo.GetMessage(s.DB.WithContext(ctx), messageID)
	if err != nil || msg.ChatID != chatID {
		return ErrMessageNotFound
	}
	if msg.Role != domain.RoleAssistant {
		return ErrNotAssistantMessage
	}
	return repo.SetMessageFeedback(s.DB.WithContext(ctx), messageID, value)
}

// ListPage returns paginated messages for a chat in sequence order.
func (s *MessageService) ListPage(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetChat(ctx, s.DB, chatID, userID); err != nil {
		return nil, 0, ErrChatNotFound
	}
	total, err := repo.CountMessages(s.DB.WithContext(ctx), chatID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), chatID, offset, pageSize)
	return items, total, err
}

// generateReply calls the provider router over the chat's recent history and
// persists the assistant turn. The last history element must be a user turn;
// histories that do not end in one (possible after aggressive truncation)
// are rejected before any provider call.
func (s *MessageService) generateReply(ctx context.Context, chat *domain.Chat, parentID *string) (*domain.Message, error) {
	recent, err := repo.ListRecentMessages(s.DB.WithContext(ctx), chat.ID, s.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 || recent[len(recent)-1].Role != domain.RoleUser {
		return nil, ErrMessageNotFound
	}

	history := make([]ai.Turn, 0, len(recent))
	for _, m := range recent {
		history = append(history, ai.Turn{Role: m.Role, Content: m.Content})
	}
	if parentID == nil {
		parentID = &recent[len(recent)-1].ID
	}

	resp, err := s.AI.Generate(ctx, ai.Request{
		Model:    chat.Model,
		Language: chat.Language,
		History:  history,
	})
	if err != nil {
		return nil, err
	}

	var assistant *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, chat.ID, domain.RoleAssistant, resp.Content, resp.TokenCount, resp.Model, parentID)
		if err != nil {
			return err
		}
		assistant = m
		return repo.BumpChatCounters(tx, chat.ID, 1, resp.TokenCount, m.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return assistant, nil
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *MessageService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitleFromPrompt derives a concise title from the first prompt words.
func (s *MessageService) generateTitleFromPrompt(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}
	titleCaser := cases.Title(s.titleLocaleOrDefault())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a generated title to the configured maximum rune length.
func (s *MessageService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

// titleLocaleOrDefault returns the configured casing locale or English.
func (s *MessageService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// --- Title generation helpers ---

// Unicode letters with optional trailing numbers (covers Arabic script too).
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles; Arabic prompts keep
// their words as-is.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"please": {}, "can": {}, "you": {}, "me": {}, "my": {}, "i": {},
}
