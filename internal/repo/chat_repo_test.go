package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// test DB helper
func newChatRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("chat_repo_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateChat_AssignsIDAndDefaults(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{})
	ctx := context.Background()

	ch, err := CreateChat(ctx, db, &domain.Chat{UserID: "u1", Title: "First", Model: "gemini-1.5-flash", Language: "en"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if ch.ID == "" {
		t.Fatalf("expected generated UUID")
	}
	if ch.CreatedAt.IsZero() || time.Since(ch.CreatedAt) > time.Minute {
		t.Fatalf("CreatedAt not set reasonably: %v", ch.CreatedAt)
	}

	got, err := GetChat(ctx, db, ch.ID, "u1")
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if got.Title != "First" || got.Model != "gemini-1.5-flash" || got.Language != "en" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestGetChat_OwnershipEnforced(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{})
	ctx := context.Background()

	ch, err := CreateChat(ctx, db, &domain.Chat{UserID: "u1", Title: "t", Model: "m"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	if _, err := GetChat(ctx, db, ch.ID, "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
}

func TestListChatsPage_PinnedFirstThenActivity(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{})
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	seed := []domain.Chat{
		{ID: "old", UserID: "u1", Title: "old", Model: "m", LastMessageAt: &t0},
		{ID: "new", UserID: "u1", Title: "new", Model: "m", LastMessageAt: &t2},
		{ID: "pin", UserID: "u1", Title: "pin", Model: "m", Pinned: true, LastMessageAt: &t1},
		{ID: "arc", UserID: "u1", Title: "arc", Model: "m", Archived: true},
		{ID: "oth", UserID: "u2", Title: "oth", Model: "m"},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := ListChatsPage(ctx, db, "u1", false, 0, 10)
	if err != nil {
		t.Fatalf("ListChatsPage: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 live chats, got %d", len(got))
	}
	if got[0].ID != "pin" {
		t.Fatalf("pinned chat must sort first, got %q", got[0].ID)
	}
	if got[1].ID != "new" || got[2].ID != "old" {
		t.Fatalf("expected activity ordering new,old; got %q,%q", got[1].ID, got[2].ID)
	}

	archived, err := ListChatsPage(ctx, db, "u1", true, 0, 10)
	if err != nil {
		t.Fatalf("ListChatsPage archived: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != "arc" {
		t.Fatalf("expected only archived chat, got %+v", archived)
	}
}

func TestCountChats_ByArchivedFlag(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{})
	ctx := context.Background()

	for i, arch := range []bool{false, false, true} {
		ch := domain.Chat{ID: fmt.Sprintf("c%d", i), UserID: "u1", Title: "t", Model: "m", Archived: arch}
		if err := db.Create(&ch).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	live, err := CountChats(ctx, db, "u1", false)
	if err != nil || live != 2 {
		t.Fatalf("live count = %d, err=%v", live, err)
	}
	arch, err := CountChats(ctx, db, "u1", true)
	if err != nil || arch != 1 {
		t.Fatalf("archived count = %d, err=%v", arch, err)
	}
}

func TestUpdateChatFields_AndArchive(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{})
	ctx := context.Background()

	ch, _ := CreateChat(ctx, db, &domain.Chat{UserID: "u1", Title: "t", Model: "m"})

	if err := UpdateChatFields(ctx, db, ch.ID, "u1", map[string]any{"title": "renamed", "pinned": true}); err != nil {
		t.Fatalf("UpdateChatFields: %v", err)
	}
	got, _ := GetChat(ctx, db, ch.ID, "u1")
	if got.Title != "renamed" || !got.Pinned {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := SetChatArchived(ctx, db, ch.ID, "u1", true); err != nil {
		t.Fatalf("SetChatArchived: %v", err)
	}
	got, _ = GetChat(ctx, db, ch.ID, "u1")
	if !got.Archived {
		t.Fatalf("archived flag not set")
	}

	if err := UpdateChatFields(ctx, db, ch.ID, "someone-else", map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
	if err := UpdateChatFields(ctx, db, "missing", "u1", map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing chat, got %v", err)
	}
}

func TestDeleteChat_SoftDeletesMessagesToo(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{}, &domain.Message{})
	ctx := context.Background()

	ch, _ := CreateChat(ctx, db, &domain.Chat{UserID: "u1", Title: "t", Model: "m"})
	if _, err := CreateMessage(db, ch.ID, domain.RoleUser, "hello", 2, "", nil); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if err := DeleteChat(ctx, db, ch.ID, "u1"); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if _, err := GetChat(ctx, db, ch.ID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("chat should be gone, got %v", err)
	}
	n, err := CountMessages(db, ch.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if n != 0 {
		t.Fatalf("messages should be soft-deleted with the chat, got %d", n)
	}

	// rows survive for audit
	var raw int64
	if err := db.Unscoped().Model(&domain.Message{}).Where("chat_id = ?", ch.ID).Count(&raw).Error; err != nil {
		t.Fatalf("unscoped count: %v", err)
	}
	if raw != 1 {
		t.Fatalf("expected soft delete to keep the row, got %d", raw)
	}

	if err := DeleteChat(ctx, db, "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBumpAndRecountChatCounters(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{}, &domain.Message{})
	ctx := context.Background()

	ch, _ := CreateChat(ctx, db, &domain.Chat{UserID: "u1", Title: "t", Model: "m"})

	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	if err := BumpChatCounters(db, ch.ID, 2, 30, at); err != nil {
		t.Fatalf("BumpChatCounters: %v", err)
	}
	got, _ := GetChat(ctx, db, ch.ID, "u1")
	if got.MessageCount != 2 || got.TotalTokens != 30 {
		t.Fatalf("counters = %d/%d, want 2/30", got.MessageCount, got.TotalTokens)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(at) {
		t.Fatalf("LastMessageAt = %v, want %v", got.LastMessageAt, at)
	}

	// Drift the counters, then recount from rows.
	if _, err := CreateMessage(db, ch.ID, domain.RoleUser, "hi there", 5, "", nil); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := RecountChat(ctx, db, ch.ID); err != nil {
		t.Fatalf("RecountChat: %v", err)
	}
	got, _ = GetChat(ctx, db, ch.ID, "u1")
	if got.MessageCount != 1 || got.TotalTokens != 5 {
		t.Fatalf("recounted = %d/%d, want 1/5", got.MessageCount, got.TotalTokens)
	}
}

func TestListChatIDs(t *testing.T) {
	db := newChatRepoDB(t, &domain.Chat{})
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := db.Create(&domain.Chat{ID: id, UserID: "u1", Title: "t", Model: "m"}).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	ids, err := ListChatIDs(ctx, db)
	if err != nil {
		t.Fatalf("ListChatIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}
