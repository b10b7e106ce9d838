package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/services"
)

func TestSanitizeContent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"  padded  \n", "padded"},
	}
	for _, tc := range cases {
		if got := sanitizeContent(tc.in); got != tc.want {
			t.Fatalf("sanitizeContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPostMessage_Success(t *testing.T) {
	var gotPrompt string
	msgSvc := &msgSvcStub{
		send: func(_ context.Context, userID, chatID, prompt string) (*services.SendResult, error) {
			gotPrompt = prompt
			return &services.SendResult{
				UserMessage:      &domain.Message{ID: testMsgID, ChatID: chatID, Role: domain.RoleUser, Content: prompt},
				AssistantMessage: &domain.Message{ID: "33333333-3333-3333-3333-333333333333", ChatID: chatID, Role: domain.RoleAssistant, Content: "hi"},
			}, nil
		},
	}
	h, _ := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	w := doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages", `{"content":"hello\r\n\n\n\nworld"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	// Line endings normalized and blank runs collapsed before the service call.
	if gotPrompt != "hello\n\nworld" {
		t.Fatalf("service prompt = %q", gotPrompt)
	}
	var resp ExchangeResponse
	decodeJSON(t, w, &resp)
	if resp.UserMessage == nil || resp.AssistantMessage == nil {
		t.Fatalf("incomplete exchange: %+v", resp)
	}
}

func TestPostMessage_Validation(t *testing.T) {
	called := false
	msgSvc := &msgSvcStub{
		send: func(context.Context, string, string, string) (*services.SendResult, error) {
			called = true
			return &services.SendResult{}, nil
		},
	}
	h, _ := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	for _, body := range []string{`{}`, `{"content":"   "}`, `{broken`} {
		w := doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, w.Code)
		}
	}
	if called {
		t.Fatalf("service reached with invalid content")
	}

	w := doRequest(r, http.MethodPost, "/chat/bad-id/messages", `{"content":"x"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad chat id: status = %d", w.Code)
	}
}

func TestPostMessage_GenerationFailureKeepsTurn(t *testing.T) {
	msgSvc := &msgSvcStub{
		send: func(_ context.Context, _, chatID, prompt string) (*services.SendResult, error) {
			return &services.SendResult{
				UserMessage: &domain.Message{ID: testMsgID, ChatID: chatID, Role: domain.RoleUser, Content: prompt},
			}, errors.New("all providers down")
		},
	}
	h, _ := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	w := doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages", `{"content":"try me"}`, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var body ErrorResponse
	decodeJSON(t, w, &body)
	if body.Code != ErrCodeGenerationFailed {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestPostMessage_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	sendCalls := 0
	msgSvc := &msgSvcStub{
		send: func(context.Context, string, string, string) (*services.SendResult, error) {
			sendCalls++
			return &services.SendResult{}, nil
		},
	}
	h, db := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	chat, err := repo.CreateChat(ctx, db, &domain.Chat{UserID: "u1", Title: "t", Model: "m", Language: "en"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	prev, err := repo.CreateMessage(db, chat.ID, domain.RoleAssistant, "cached answer", 3, "m", nil)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "u1", chat.ID, "retry-key-1", prev.ID, http.StatusOK, time.Hour); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}

	w := doRequest(r, http.MethodPost, "/chat/"+chat.ID+"/messages", `{"content":"same request again"}`,
		map[string]string{"Idempotency-Key": "retry-key-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	if sendCalls != 0 {
		t.Fatalf("generation ran %d times on a replay", sendCalls)
	}
	var resp ExchangeResponse
	decodeJSON(t, w, &resp)
	if resp.AssistantMessage == nil || resp.AssistantMessage.Content != "cached answer" {
		t.Fatalf("replayed body = %+v", resp)
	}

	// A different key is a fresh request.
	w = doRequest(r, http.MethodPost, "/chat/"+chat.ID+"/messages", `{"content":"same request again"}`,
		map[string]string{"Idempotency-Key": "retry-key-2"})
	if w.Code != http.StatusOK {
		t.Fatalf("fresh key status = %d", w.Code)
	}
	if sendCalls != 1 {
		t.Fatalf("fresh key did not reach the service")
	}
}

func TestEditMessage(t *testing.T) {
	var gotContent string
	msgSvc := &msgSvcStub{
		edit: func(_ context.Context, _, chatID, messageID, newContent string) (*services.SendResult, error) {
			gotContent = newContent
			return &services.SendResult{
				UserMessage:      &domain.Message{ID: messageID, ChatID: chatID, Role: domain.RoleUser, Content: newContent, Edited: true},
				AssistantMessage: &domain.Message{ID: "33333333-3333-3333-3333-333333333333", ChatID: chatID, Role: domain.RoleAssistant, Content: "new reply"},
			}, nil
		},
	}
	h, _ := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	w := doRequest(r, http.MethodPut, "/chat/"+testChatID+"/messages/"+testMsgID, `{"content":"   fixed question  "}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if gotContent != "fixed question" {
		t.Fatalf("service content = %q", gotContent)
	}

	w = doRequest(r, http.MethodPut, "/chat/"+testChatID+"/messages/not-a-uuid", `{"content":"x"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad message id: status = %d", w.Code)
	}
}

func TestEditMessage_EditSticksOnGenerationFailure(t *testing.T) {
	msgSvc := &msgSvcStub{
		edit: func(_ context.Context, _, chatID, messageID, newContent string) (*services.SendResult, error) {
			return &services.SendResult{
				UserMessage: &domain.Message{ID: messageID, ChatID: chatID, Role: domain.RoleUser, Content: newContent, Edited: true},
			}, errors.New("provider down")
		},
	}
	h, _ := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	w := doRequest(r, http.MethodPut, "/chat/"+testChatID+"/messages/"+testMsgID, `{"content":"edited anyway"}`, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestRegenerateMessage(t *testing.T) {
	msgSvc := &msgSvcStub{
		regenerate: func(_ context.Context, _, chatID, _ string) (*services.SendResult, error) {
			return &services.SendResult{
				AssistantMessage: &domain.Message{ID: "33333333-3333-3333-3333-333333333333", ChatID: chatID, Role: domain.RoleAssistant, Content: "take two"},
			}, nil
		},
	}
	h, _ := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	w := doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages/"+testMsgID+"/regenerate", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ExchangeResponse
	decodeJSON(t, w, &resp)
	if resp.AssistantMessage == nil || resp.AssistantMessage.Content != "take two" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.UserMessage != nil {
		t.Fatalf("regenerate returned a user turn")
	}
}

func TestPostFeedback(t *testing.T) {
	var gotValue int
	msgSvc := &msgSvcStub{
		feedback: func(_ context.Context, _, _, _ string, value int) error {
			gotValue = value
			if value > 1 || value < -1 {
				return services.ErrInvalidFeedback
			}
			return nil
		},
	}
	h, _ := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	w := doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages/"+testMsgID+"/feedback", `{"value":-1}`, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if gotValue != -1 {
		t.Fatalf("value forwarded = %d", gotValue)
	}

	w = doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages/"+testMsgID+"/feedback", `{"value":5}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range value: status = %d", w.Code)
	}

	// A zero value is legal (it clears feedback) and must survive binding.
	w = doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages/"+testMsgID+"/feedback", `{"value":0}`, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("zero value: status = %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/chat/"+testChatID+"/messages/"+testMsgID+"/feedback", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing value: status = %d", w.Code)
	}
}

func TestListMessages_ETag(t *testing.T) {
	msgSvc := &msgSvcStub{
		listPage: func(context.Context, string, string, int, int) ([]domain.Message, int64, error) {
			return []domain.Message{{ID: testMsgID, Role: domain.RoleUser, Content: "x"}}, 1, nil
		},
	}
	h, db := newTestHandlers(t, nil, msgSvc)
	r := newTestRouter(h)

	chat, err := repo.CreateChat(context.Background(), db, &domain.Chat{UserID: "u1", Title: "t", Model: "m", Language: "en"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := repo.CreateMessage(db, chat.ID, domain.RoleUser, "x", 1, "", nil); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	w := doRequest(r, http.MethodGet, "/chat/"+chat.ID+"/messages", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("no etag on message list")
	}
	w = doRequest(r, http.MethodGet, "/chat/"+chat.ID+"/messages", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d, want 304", w.Code)
	}
}
