package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUserLocked(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name  string
		until *time.Time
		want  bool
	}{
		{"never locked", nil, false},
		{"lock expired", &past, false},
		{"lock active", &future, true},
	}
	for _, tc := range cases {
		u := User{LockedUntil: tc.until}
		if got := u.Locked(now); got != tc.want {
			t.Fatalf("%s: Locked() = %v, want %v", tc.name, got, tc.want)
		}
	}

	// The boundary instant counts as unlocked.
	u := User{LockedUntil: &now}
	if u.Locked(now) {
		t.Fatalf("Locked() at exact expiry should be false")
	}
}

func TestUserJSONHidesCredentials(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	u := User{
		ID:           "u1",
		Email:        "amira@example.com",
		Username:     "amira",
		PasswordHash: "$2a$10$secret",
		VerifyToken:  "verify-token",
		ResetToken:   "reset-token",
		ResetExpires: &exp,
		LockedUntil:  &exp,
	}
	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	body := string(b)
	for _, secret := range []string{"secret", "verify-token", "reset-token", "password"} {
		if strings.Contains(body, secret) {
			t.Fatalf("serialized user leaks %q: %s", secret, body)
		}
	}
	if !strings.Contains(body, "amira@example.com") {
		t.Fatalf("serialized user missing public fields: %s", body)
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():         "users",
		Chat{}.TableName():         "chats",
		Message{}.TableName():      "messages",
		UserSummary{}.TableName():  "user_summaries",
		RefreshToken{}.TableName(): "refresh_tokens",
		Idempotency{}.TableName():  "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("table name = %q, want %q", got, want)
		}
	}
}
