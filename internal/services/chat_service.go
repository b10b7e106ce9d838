// Package services – ChatService
//
// This file implements ChatService, which manages the lifecycle of chats.
// It validates and normalizes titles, enforces ownership rules, and
// coordinates repository operations for creating, listing (with pagination
// and an archived filter), updating, archiving, and deleting chats. Title
// handling is intentionally minimal here because automatic title generation
// is performed in MessageService on the first user message.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/search"
)

// ChatService provides chat-level operations. It enforces title rules and
// ownership constraints; message content is owned by MessageService.
type ChatService struct {
	DB *gorm.DB

	// DefaultModel is assigned to chats created without a model name.
	DefaultModel string
	// DefaultLang is assigned to chats created without a language.
	DefaultLang string
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewChatService constructs a ChatService with sane defaults for title handling.
func NewChatService(db *gorm.DB, defaultModel, defaultLang string) *ChatService {
	return &ChatService{
		DB:           db,
		DefaultModel: defaultModel,
		DefaultLang:  defaultLang,
		TitleMaxLen:  60,
	}
}

// ChatUpdate carries the mutable chat fields for Update. Nil pointers leave
// the field unchanged.
type ChatUpdate struct {
	Title    *string         `json:"title,omitempty"`
	Model    *string         `json:"model,omitempty"`
	Language *string         `json:"language,omitempty"`
	Pinned   *bool           `json:"pinned,omitempty"`
	Tags     *datatypes.JSON `json:"tags,omitempty"`
	Settings *datatypes.JSON `json:"settings,omitempty"`
}

// Create inserts a new chat owned by userID. Blank title, model, and language
// fall back to defaults.
func (s *ChatService) Create(ctx context.Context, userID, title, model, lang string) (*domain.Chat, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = "New chat"
	}
	if model == "" {
		model = s.DefaultModel
	}
	if lang != domain.LangArabic {
		if lang != domain.LangEnglish {
			lang = s.DefaultLang
		}
	}
	return repo.CreateChat(ctx, s.DB, &domain.Chat{
		UserID:   userID,
		Title:    s.clip(title),
		Model:    model,
		Language: lang,
	})
}

// ListPage returns a page of chats for a user, filtered by archived state.
// It applies defaults for invalid page/pageSize and returns the total count.
func (s *ChatService) ListPage(ctx context.Context, userID string, archived bool, page, pageSize int) ([]domain.Chat, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountChats(ctx, s.DB, userID, archived)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Chat{}, 0, nil
	}

	items, err := repo.ListChatsPage(ctx, s.DB, userID, archived, offset, pageSize)
	return items, total, err
}

// Get fetches a single chat, ensuring it belongs to the user.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	chat, err := repo.GetChat(ctx, s.DB, chatID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return chat, nil
}

// Update applies a partial update to chat metadata.
func (s *ChatService) Update(ctx context.Context, userID, chatID string, upd ChatUpdate) (*domain.Chat, error) {
	fields := map[string]any{}
	if upd.Title != nil {
		t := normalizeTitle(*upd.Title)
		if t == "" {
			t = "Untitled"
		}
		fields["title"] = s.clip(t)
	}
	if upd.Model != nil && *upd.Model != "" {
		fields["model"] = *upd.Model
	}
	if upd.Language != nil {
		if *upd.Language != domain.LangEnglish && *upd.Language != domain.LangArabic {
			return nil, errors.New("language must be en or ar")
		}
		fields["language"] = *upd.Language
	}
	if upd.Pinned != nil {
		fields["pinned"] = *upd.Pinned
	}
	if upd.Tags != nil {
		fields["tags"] = *upd.Tags
	}
	if upd.Settings != nil {
		fields["settings"] = *upd.Settings
	}

	if len(fields) > 0 {
		if err := repo.UpdateChatFields(ctx, s.DB, chatID, userID, fields); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrChatNotFound
			}
			return nil, err
		}
	}
	return s.Get(ctx, userID, chatID)
}

// SetArchived toggles the archived flag.
func (s *ChatService) SetArchived(ctx context.Context, userID, chatID string, archived bool) error {
	if err := repo.SetChatArchived(ctx, s.DB, chatID, userID, archived); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	return nil
}

// Delete soft-deletes a chat and all of its messages.
func (s *ChatService) Delete(ctx context.Context, userID, chatID string) error {
	if err := repo.DeleteChat(ctx, s.DB, chatID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	return nil
}

// searchCandidateLimit bounds how many recent messages feed the in-memory
// search index per request.
const searchCandidateLimit = 2000

// SearchHit is one ranked message from SearchMessages.
type SearchHit struct {
	MessageID string  `json:"message_id"`
	ChatID    string  `json:"chat_id"`
	Role      string  `json:"role"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

// SearchMessages ranks the user's recent messages against a free-text query.
// The index is rebuilt per request; the candidate pool is capped, so very old
// history ages out of search.
func (s *ChatService) SearchMessages(ctx context.Context, userID, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchHit{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	msgs, err := repo.ListUserMessages(s.DB.WithContext(ctx), userID, searchCandidateLimit)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Doc, 0, len(msgs))
	for _, m := range msgs {
		docs = append(docs, search.Doc{
			MessageID: m.ID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Text:      m.Content,
		})
	}
	results := search.New(docs).TopK(query, limit)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			MessageID: r.MessageID,
			ChatID:    r.ChatID,
			Role:      r.Role,
			Snippet:   snippet(r.Text, 160),
			Score:     r.Score,
		})
	}
	return hits, nil
}

// snippet truncates text to at most n runes, appending an ellipsis.
func snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// clip truncates a chat title to the configured maximum rune length.
func (s *ChatService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
