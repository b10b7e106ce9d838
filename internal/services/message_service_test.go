package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ai"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
)

// ----- Fake provider -----

type fakeProvider struct {
	name      string
	reply     string
	err       error
	errOnLang string // fail only requests in this language
	calls     []ai.Request
}

func (p *fakeProvider) Name() string {
	if p.name == "" {
		return "fake"
	}
	return p.name
}

func (p *fakeProvider) Generate(_ context.Context, req ai.Request) (*ai.Response, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	if p.errOnLang != "" && req.Language == p.errOnLang {
		return nil, errors.New("language unavailable")
	}
	return &ai.Response{
		Content:    p.reply,
		TokenCount: ai.EstimateTokens(p.reply),
		Provider:   p.Name(),
		Model:      req.Model,
	}, nil
}

func (p *fakeProvider) Close() error { return nil }

// ----- Helpers -----

const testModel = "test-model"

func newMsgSvc(t *testing.T, p *fakeProvider) *MessageService {
	t.Helper()
	router := ai.NewRouter([]ai.Capability{
		{Provider: p, Models: []string{testModel}, NativeArabic: true},
	}, nil, zerolog.Nop())
	return NewMessageService(newServiceDB(t), router, 20)
}

func newTestChat(t *testing.T, db *gorm.DB, userID string) *domain.Chat {
	t.Helper()
	chat, err := repo.CreateChat(context.Background(), db, &domain.Chat{
		UserID:   userID,
		Title:    "New chat",
		Model:    testModel,
		Language: "en",
	})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	return chat
}

func TestSend_PersistsBothTurnsAndAutoTitles(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "It relates the sides of a right triangle."}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	res, err := s.Send(ctx, "u1", chat.ID, "Explain the pythagorean theorem please")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.UserMessage == nil || res.AssistantMessage == nil {
		t.Fatalf("incomplete result: %+v", res)
	}
	if res.UserMessage.Seq != 1 || res.AssistantMessage.Seq != 2 {
		t.Fatalf("seq = %d/%d, want 1/2", res.UserMessage.Seq, res.AssistantMessage.Seq)
	}
	if res.AssistantMessage.ParentID == nil || *res.AssistantMessage.ParentID != res.UserMessage.ID {
		t.Fatalf("assistant not linked to user turn")
	}
	if res.AssistantMessage.Model != testModel {
		t.Fatalf("assistant model = %q", res.AssistantMessage.Model)
	}

	got, err := repo.GetChat(ctx, s.DB, chat.ID, "u1")
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if got.MessageCount != 2 {
		t.Fatalf("MessageCount = %d, want 2", got.MessageCount)
	}
	if got.LastMessageAt == nil {
		t.Fatalf("LastMessageAt not set")
	}
	// Placeholder titles are replaced from the first prompt; stop-words drop out.
	if got.Title != "Explain Pythagorean Theorem" {
		t.Fatalf("auto title = %q", got.Title)
	}

	// A second send must not re-title the chat.
	if _, err := s.Send(ctx, "u1", chat.ID, "and the law of cosines"); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	got, _ = repo.GetChat(ctx, s.DB, chat.ID, "u1")
	if got.Title != "Explain Pythagorean Theorem" {
		t.Fatalf("title changed on second send: %q", got.Title)
	}
}

func TestSend_Validation(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "ok"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	if _, err := s.Send(ctx, "u1", chat.ID, "   \n "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("blank prompt = %v, want ErrEmptyPrompt", err)
	}
	s.MaxPromptRunes = 5
	if _, err := s.Send(ctx, "u1", chat.ID, "this is too long"); !errors.Is(err, ErrTooLong) {
		t.Fatalf("long prompt = %v, want ErrTooLong", err)
	}
	s.MaxPromptRunes = 8000
	if _, err := s.Send(ctx, "u2", chat.ID, "hi"); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("foreign chat = %v, want ErrChatNotFound", err)
	}
	if len(p.calls) != 0 {
		t.Fatalf("provider called %d times on rejected sends", len(p.calls))
	}
}

func TestSend_ProviderFailureKeepsUserTurn(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{err: errors.New("upstream 503")}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	res, err := s.Send(ctx, "u1", chat.ID, "does this survive")
	if err == nil {
		t.Fatalf("Send succeeded with failing provider")
	}
	if res == nil || res.UserMessage == nil || res.AssistantMessage != nil {
		t.Fatalf("result = %+v, want user turn only", res)
	}
	msgs, err := repo.ListMessages(s.DB, chat.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Fatalf("stored %d messages, want the user turn alone", len(msgs))
	}
}

func TestSend_HistoryWindowBounded(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "sure"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	for _, prompt := range []string{"one", "two", "three"} {
		if _, err := s.Send(ctx, "u1", chat.ID, prompt); err != nil {
			t.Fatalf("Send %q: %v", prompt, err)
		}
	}

	s.HistoryLimit = 2
	if _, err := s.Send(ctx, "u1", chat.ID, "four"); err != nil {
		t.Fatalf("Send four: %v", err)
	}
	last := p.calls[len(p.calls)-1]
	if len(last.History) != 2 {
		t.Fatalf("history window = %d turns, want 2", len(last.History))
	}
	if tail := last.History[len(last.History)-1]; tail.Role != domain.RoleUser || tail.Content != "four" {
		t.Fatalf("window tail = %+v, want pending prompt", tail)
	}
	if last.System == "" {
		t.Fatalf("system prompt not filled by router")
	}
}

func TestEditAndRegenerate_TruncatesThenRegenerates(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "reply"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	first, err := s.Send(ctx, "u1", chat.ID, "original question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := s.Send(ctx, "u1", chat.ID, "follow up"); err != nil {
		t.Fatalf("Send follow up: %v", err)
	}

	res, err := s.EditAndRegenerate(ctx, "u1", chat.ID, first.UserMessage.ID, "rewritten question")
	if err != nil {
		t.Fatalf("EditAndRegenerate: %v", err)
	}
	if res.UserMessage.Content != "rewritten question" || !res.UserMessage.Edited {
		t.Fatalf("edited turn = %+v", res.UserMessage)
	}
	if res.UserMessage.EditedAt == nil {
		t.Fatalf("EditedAt not stamped")
	}
	if res.AssistantMessage == nil || res.AssistantMessage.ParentID == nil || *res.AssistantMessage.ParentID != res.UserMessage.ID {
		t.Fatalf("fresh reply missing or unlinked")
	}

	// Everything after the edited turn is gone: edited user turn + new reply.
	msgs, err := repo.ListMessages(s.DB, chat.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("surviving messages = %d, want 2", len(msgs))
	}
	// The regenerated reply continues the sequence past the truncated rows.
	if res.AssistantMessage.Seq <= 4 {
		t.Fatalf("reply seq = %d, want > 4 (slots of truncated rows stay used)", res.AssistantMessage.Seq)
	}

	got, _ := repo.GetChat(ctx, s.DB, chat.ID, "u1")
	if got.MessageCount != 2 {
		t.Fatalf("MessageCount = %d after recount, want 2", got.MessageCount)
	}
}

func TestEditAndRegenerate_EditPersistsWhenProviderFails(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "reply"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	first, err := s.Send(ctx, "u1", chat.ID, "original question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	p.err = errors.New("upstream down")
	res, err := s.EditAndRegenerate(ctx, "u1", chat.ID, first.UserMessage.ID, "still want this saved")
	if err == nil {
		t.Fatalf("EditAndRegenerate succeeded with failing provider")
	}
	if res == nil || res.UserMessage == nil || res.UserMessage.Content != "still want this saved" {
		t.Fatalf("edit lost: %+v", res)
	}
	msgs, _ := repo.ListMessages(s.DB, chat.ID, 0)
	if len(msgs) != 1 || msgs[0].Content != "still want this saved" {
		t.Fatalf("stored state wrong: %d messages", len(msgs))
	}
}

func TestEditAndRegenerate_OnlyUserTurns(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "reply"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	res, err := s.Send(ctx, "u1", chat.ID, "question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := s.EditAndRegenerate(ctx, "u1", chat.ID, res.AssistantMessage.ID, "nope"); !errors.Is(err, ErrNotUserMessage) {
		t.Fatalf("edit assistant = %v, want ErrNotUserMessage", err)
	}
	if _, err := s.EditAndRegenerate(ctx, "u1", chat.ID, "missing", "nope"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("edit missing = %v, want ErrMessageNotFound", err)
	}

	other := newTestChat(t, s.DB, "u1")
	if _, err := s.EditAndRegenerate(ctx, "u1", other.ID, res.UserMessage.ID, "cross-chat"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("cross-chat edit = %v, want ErrMessageNotFound", err)
	}
}

func TestRegenerate_ReplacesAssistantReply(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "first answer"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	res, err := s.Send(ctx, "u1", chat.ID, "question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	p.reply = "better answer"
	regen, err := s.Regenerate(ctx, "u1", chat.ID, res.AssistantMessage.ID)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if regen.AssistantMessage == nil || regen.AssistantMessage.Content != "better answer" {
		t.Fatalf("regenerated reply = %+v", regen.AssistantMessage)
	}
	if regen.AssistantMessage.ParentID == nil || *regen.AssistantMessage.ParentID != res.UserMessage.ID {
		t.Fatalf("regenerated reply lost its parent link")
	}

	msgs, _ := repo.ListMessages(s.DB, chat.ID, 0)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want question plus one reply", len(msgs))
	}
	for _, m := range msgs {
		if m.Role == domain.RoleAssistant && m.Content != "better answer" {
			t.Fatalf("stale reply survived: %q", m.Content)
		}
	}

	if _, err := s.Regenerate(ctx, "u1", chat.ID, res.UserMessage.ID); !errors.Is(err, ErrNotAssistantMessage) {
		t.Fatalf("regenerate user turn = %v, want ErrNotAssistantMessage", err)
	}
}

func TestFeedback_ValidationAndStorage(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "answer"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	res, err := s.Send(ctx, "u1", chat.ID, "question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := s.Feedback(ctx, "u1", chat.ID, res.AssistantMessage.ID, 2); !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("value 2 = %v, want ErrInvalidFeedback", err)
	}
	if err := s.Feedback(ctx, "u1", chat.ID, res.UserMessage.ID, 1); !errors.Is(err, ErrNotAssistantMessage) {
		t.Fatalf("feedback on user turn = %v, want ErrNotAssistantMessage", err)
	}
	if err := s.Feedback(ctx, "u2", chat.ID, res.AssistantMessage.ID, 1); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("intruder feedback = %v, want ErrChatNotFound", err)
	}

	if err := s.Feedback(ctx, "u1", chat.ID, res.AssistantMessage.ID, -1); err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	m, err := repo.GetMessage(s.DB, res.AssistantMessage.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m.Feedback != -1 {
		t.Fatalf("feedback = %d, want -1", m.Feedback)
	}
}

func TestMessageListPage(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "r"}
	s := newMsgSvc(t, p)
	chat := newTestChat(t, s.DB, "u1")

	for _, prompt := range []string{"a", "b", "c"} {
		if _, err := s.Send(ctx, "u1", chat.ID, prompt); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	items, total, err := s.ListPage(ctx, "u1", chat.ID, 2, 4)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 6 || len(items) != 2 {
		t.Fatalf("page 2 of 4: total=%d len=%d, want 6/2", total, len(items))
	}
	if items[0].Seq != 5 || !strings.EqualFold(items[0].Role, domain.RoleUser) {
		t.Fatalf("page start seq=%d role=%s", items[0].Seq, items[0].Role)
	}

	if _, _, err := s.ListPage(ctx, "u2", chat.ID, 1, 10); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("intruder list = %v, want ErrChatNotFound", err)
	}
}
